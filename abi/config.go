package abi

// Config configures a Boundary and its host module.
type Config struct {
	// ModuleName is the import module name guests use.
	ModuleName string
	// MaxArgs bounds the argument count of one call.
	MaxArgs uint32
	// MaxStringLen bounds strings read from guest memory.
	MaxStringLen uint32
}

// DefaultConfig returns the default boundary configuration.
func DefaultConfig() Config {
	return Config{
		ModuleName:   "rebind",
		MaxArgs:      64,
		MaxStringLen: 1 << 20,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.ModuleName == "" {
		c.ModuleName = d.ModuleName
	}
	if c.MaxArgs == 0 {
		c.MaxArgs = d.MaxArgs
	}
	if c.MaxStringLen == 0 {
		c.MaxStringLen = d.MaxStringLen
	}
	return c
}
