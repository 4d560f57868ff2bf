package excel

// Config identifies the backing workbook. Each registered table maps to one
// worksheet of this file.
type Config struct {
	FilePath string
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return ErrMissingFilePath
	}
	return nil
}
