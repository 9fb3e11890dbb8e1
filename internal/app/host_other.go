//go:build !linux

package app

func kernelRelease() string { return "" }

func insideChroot() bool { return false }
