package compose

// ExtensionKey is the service-level compose extension carrying the settings
// compose itself has no field for.
const ExtensionKey = "x-dockerbay"

// Options controls how a compose file is read.
type Options struct {
	// WorkingDir anchors relative bind sources, usually the compose file's
	// directory.
	WorkingDir string
	// Environment is used for ${VAR} interpolation.
	Environment map[string]string
}

// extension is the decoded x-dockerbay block of one service.
//
//	services:
//	  api:
//	    image: example/api
//	    x-dockerbay:
//	      exposed_port: 8080
//	      wait_for_url: /health
//	      timeout: 90s
type extension struct {
	ExposedPort int    `yaml:"exposed_port"`
	DebugPort   int    `yaml:"debug_port"`
	WaitForLog  string `yaml:"wait_for_log"`
	WaitForURL  string `yaml:"wait_for_url"`
	Timeout     string `yaml:"timeout"`
	DisplayLogs bool   `yaml:"display_logs"`
}
