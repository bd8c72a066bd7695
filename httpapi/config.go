package httpapi

// Config defines HTTP UI settings.
type Config struct {
	Addr     string
	BaseURL  string
	BasePath string
}
