package appconfig

// PublishConfig selects the object store artifacts are uploaded to. Credentials
// are never stored here; AccessKeyEnv and SecretKeyEnv name the variables that
// hold them.
type PublishConfig struct {
	Endpoint     string          `yaml:"endpoint,omitempty"`
	Region       string          `yaml:"region,omitempty"`
	Bucket       string          `yaml:"bucket,omitempty"`
	Remote       string          `yaml:"remote,omitempty"`
	AccessKeyEnv string          `yaml:"accessKeyEnv,omitempty"`
	SecretKeyEnv string          `yaml:"secretKeyEnv,omitempty"`
	Targets      []PublishTarget `yaml:"targets,omitempty"`
}

// PublishTarget maps a release target name to its src/out directory.
type PublishTarget struct {
	Name   string `yaml:"name"`
	OutDir string `yaml:"outDir"`
}

func mergePublish(a, b PublishConfig) PublishConfig {
	out := a
	if b.Endpoint != "" {
		out.Endpoint = b.Endpoint
	}
	if b.Region != "" {
		out.Region = b.Region
	}
	if b.Bucket != "" {
		out.Bucket = b.Bucket
	}
	if b.Remote != "" {
		out.Remote = b.Remote
	}
	if b.AccessKeyEnv != "" {
		out.AccessKeyEnv = b.AccessKeyEnv
	}
	if b.SecretKeyEnv != "" {
		out.SecretKeyEnv = b.SecretKeyEnv
	}
	if len(b.Targets) > 0 {
		out.Targets = b.Targets
	}
	return out
}
