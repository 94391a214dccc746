package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	// Type is "local", "s3" or "gcs".
	Type string `yaml:"type" mapstructure:"type"`
	// BucketName is used when an operation names no bucket.
	BucketName string `yaml:"bucket_name" mapstructure:"bucket_name"`
	// CredentialsFile is the service account key for GCS.
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	// BaseDir is the root directory of the local backend.
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`

	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}
