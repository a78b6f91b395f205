package config

import "fmt"

// CpuScale picks what 100% CPU means in a process snapshot.
type CpuScale string

const (
	// 100 is one fully busy logical core, so a process can go past 100.
	CpuScalePerCore CpuScale = "core"
	// 100 is every logical core on the machine fully busy.
	CpuScaleSystem CpuScale = "system"
)

func ParseCpuScale(value string) (CpuScale, error) {
	switch CpuScale(value) {
	case CpuScalePerCore, CpuScaleSystem:
		return CpuScale(value), nil
	}

	return "", fmt.Errorf("invalid cpu scale: '%s'", value)
}

func (scale *CpuScale) UnmarshalJSON(buf []byte) error {
	value := string(buf)

	switch value {
	case "null":
		// leave the field as is, like encoding/json does

	case `"core"`:
		*scale = CpuScalePerCore
	case `"system"`:
		*scale = CpuScaleSystem

	default:
		return fmt.Errorf("invalid cpu scale: '%s'", value)
	}

	return nil
}
