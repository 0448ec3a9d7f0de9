//go:build !linux

package storage

func probeFilesystem(string) (fsKind, error) { return fsKind{}, errNoProbe }
