//go:build linux && (mips || mipsle || mips64 || mips64le)

package process

const siginfoCodeIndex = 0
