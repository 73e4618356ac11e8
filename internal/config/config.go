package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// DefaultPath dipakai kalau --config dan CONFIG_PATH kosong
const DefaultPath = "scanpipe.yaml"

// Duration accepts "5s" style strings in both YAML and JSON files.
type Duration struct{ time.Duration }

func (d *Duration) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error { return d.set(node.Value) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.set(s)
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Run         RunConfig         `yaml:"run" json:"run"`
	Source      SourceConfig      `yaml:"source" json:"source"`
	Environment EnvironmentConfig `yaml:"environment" json:"environment"`
	Stages      []StageConfig     `yaml:"stages" json:"stages"`
	Scanners    ScannersConfig    `yaml:"scanners" json:"scanners"`
	Artifacts   ArtifactsConfig   `yaml:"artifacts" json:"artifacts"`
	Database    DatabaseConfig    `yaml:"database" json:"database"`
	Minio       MinioConfig       `yaml:"minio" json:"minio"`
	AI          AIConfig          `yaml:"ai" json:"ai"`
}

type ServerConfig struct {
	Port        int               `yaml:"port" json:"port"`
	APIKeys     map[string]string `yaml:"apiKeys" json:"apiKeys"` // name -> key
	CORSOrigins []string          `yaml:"corsOrigins" json:"corsOrigins"`
	RateLimit   struct {
		PerMinute int `yaml:"perMinute" json:"perMinute"`
		Burst     int `yaml:"burst" json:"burst"`
	} `yaml:"rateLimit" json:"rateLimit"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

type RunConfig struct {
	WorkDir           string   `yaml:"workDir" json:"workDir"`
	LogDir            string   `yaml:"logDir" json:"logDir"`
	StopTimeout       Duration `yaml:"stopTimeout" json:"stopTimeout"`
	InvocationTimeout Duration `yaml:"invocationTimeout" json:"invocationTimeout"`
	TriggeredBy       string   `yaml:"triggeredBy" json:"triggeredBy"`
}

type SourceConfig struct {
	Path string `yaml:"path" json:"path"`
	Repo string `yaml:"repo" json:"repo"`
	Ref  string `yaml:"ref" json:"ref"`
}

type EnvironmentConfig struct {
	ComposeFile    string   `yaml:"composeFile" json:"composeFile"`
	ProjectName    string   `yaml:"projectName" json:"projectName"`
	ComposeCommand []string `yaml:"composeCommand" json:"composeCommand"`
	DockerBinary   string   `yaml:"dockerBinary" json:"dockerBinary"`
	ImageTag       string   `yaml:"imageTag" json:"imageTag"`
	BuildContext   string   `yaml:"buildContext" json:"buildContext"`
	Dockerfile     string   `yaml:"dockerfile" json:"dockerfile"`
	Rebuild        bool     `yaml:"rebuild" json:"rebuild"`
	ReadyURL       string   `yaml:"readyUrl" json:"readyUrl"`
	Endpoint       string   `yaml:"endpoint" json:"endpoint"` // scan target, defaults to readyUrl
	PollInterval   Duration `yaml:"pollInterval" json:"pollInterval"`
	ReadyTimeout   Duration `yaml:"readyTimeout" json:"readyTimeout"`
	BuildTimeout   Duration `yaml:"buildTimeout" json:"buildTimeout"`
	ComposeTimeout Duration `yaml:"composeTimeout" json:"composeTimeout"`
}

// StageConfig satu entry di daftar stages
type StageConfig struct {
	Name      string   `yaml:"name" json:"name"`
	Kind      string   `yaml:"kind" json:"kind"`
	Policy    string   `yaml:"policy" json:"policy"`
	Threshold string   `yaml:"threshold" json:"threshold"`
	Timeout   Duration `yaml:"timeout" json:"timeout"`
	// RequiresEnvironment defaults to true for dast stages.
	RequiresEnvironment *bool `yaml:"requiresEnvironment" json:"requiresEnvironment"`
	// Endpoint is scanned instead of the ephemeral instance when the stage
	// does not require the environment.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// NeedsEnvironment resolves the RequiresEnvironment default.
func (s StageConfig) NeedsEnvironment() bool {
	if s.RequiresEnvironment != nil {
		return *s.RequiresEnvironment
	}
	return s.Kind == string(scans.KindDAST)
}

type ScannersConfig struct {
	SAST struct {
		Binary string `yaml:"binary" json:"binary"`
		Rules  string `yaml:"rules" json:"rules"`
	} `yaml:"sast" json:"sast"`
	SCA struct {
		Binary      string `yaml:"binary" json:"binary"`
		SkipInstall bool   `yaml:"skipInstall" json:"skipInstall"`
	} `yaml:"sca" json:"sca"`
	Container struct {
		Binary   string `yaml:"binary" json:"binary"`
		PreCheck bool   `yaml:"preCheck" json:"preCheck"`
	} `yaml:"container" json:"container"`
	DAST struct {
		DockerBinary  string `yaml:"dockerBinary" json:"dockerBinary"`
		Image         string `yaml:"image" json:"image"`
		Network       string `yaml:"network" json:"network"`
		SpiderMinutes int    `yaml:"spiderMinutes" json:"spiderMinutes"`
	} `yaml:"dast" json:"dast"`
}

type ArtifactsConfig struct {
	Store  string                  `yaml:"store" json:"store"` // local | minio | none
	Dir    string                  `yaml:"dir" json:"dir"`
	Prefix string                  `yaml:"prefix" json:"prefix"`
	Paths  []pipeline.ArtifactSpec `yaml:"paths" json:"paths"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" json:"driver"` // "", mysql, postgres
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Name     string `yaml:"name" json:"name"`
	SSLMode  string `yaml:"sslMode" json:"sslMode"`
	Migrate  bool   `yaml:"migrate" json:"migrate"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	AccessKey  string `yaml:"accessKey" json:"accessKey"`
	SecretKey  string `yaml:"secretKey" json:"secretKey"`
	BucketName string `yaml:"bucketName" json:"bucketName"`
	Region     string `yaml:"region" json:"region"`
	UseSSL     bool   `yaml:"useSSL" json:"useSSL"`
}

type AIConfig struct {
	APIKey  string `yaml:"apiKey" json:"apiKey"`
	BaseURL string `yaml:"baseUrl" json:"baseUrl"`
	Model   string `yaml:"model" json:"model"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.RateLimit.PerMinute = 6
	cfg.Server.RateLimit.Burst = 2
	cfg.Server.ShutdownTimeout = Duration{3 * time.Minute}

	cfg.Run.WorkDir = ".scanpipe/work"
	cfg.Run.LogDir = ".scanpipe/logs"
	cfg.Run.StopTimeout = Duration{2 * time.Minute}
	cfg.Run.InvocationTimeout = Duration{30 * time.Minute}

	cfg.Source.Path = "."

	cfg.Environment.ComposeFile = "docker-compose.yml"
	cfg.Environment.ProjectName = "scanpipe"
	cfg.Environment.ComposeCommand = []string{"docker", "compose"}
	cfg.Environment.DockerBinary = "docker"
	cfg.Environment.ImageTag = "scanpipe-target:latest"
	cfg.Environment.BuildContext = "."
	cfg.Environment.Dockerfile = "Dockerfile"
	cfg.Environment.ReadyURL = "http://localhost:3000/"
	cfg.Environment.PollInterval = Duration{2 * time.Second}
	cfg.Environment.ReadyTimeout = Duration{2 * time.Minute}
	cfg.Environment.BuildTimeout = Duration{20 * time.Minute}
	cfg.Environment.ComposeTimeout = Duration{5 * time.Minute}

	cfg.Scanners.SAST.Binary = "semgrep"
	cfg.Scanners.SAST.Rules = "auto"
	cfg.Scanners.SCA.Binary = "npm"
	cfg.Scanners.Container.Binary = "trivy"
	cfg.Scanners.Container.PreCheck = true
	cfg.Scanners.DAST.DockerBinary = "docker"
	cfg.Scanners.DAST.Image = "ghcr.io/zaproxy/zaproxy:stable"
	cfg.Scanners.DAST.Network = "host"
	cfg.Scanners.DAST.SpiderMinutes = 1

	cfg.Artifacts.Store = "local"
	cfg.Artifacts.Dir = ".scanpipe/artifacts"
	cfg.Artifacts.Prefix = "scanpipe"

	cfg.Database.SSLMode = "disable"
	cfg.Database.Migrate = true
	cfg.Minio.Region = "us-east-1"
	cfg.AI.Model = "gpt-4o-mini"
	return cfg
}

// DefaultStages is the sast, sca, container, dast pipeline. The scans of
// code and image are fatal; dast against the ephemeral instance is advisory.
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Name: "sast", Kind: "sast", Policy: "fatal", Threshold: "high"},
		{Name: "sca", Kind: "sca", Policy: "fatal", Threshold: "high"},
		{Name: "container", Kind: "container", Policy: "fatal", Threshold: "high"},
		{Name: "dast", Kind: "dast", Policy: "advisory", Threshold: "high"},
	}
}

// ResolvePath picks the flag value, then CONFIG_PATH, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load baca file config (yaml, atau json/jsonc) lalu apply env override + validate
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data according to ext (".yaml", ".yml", ".json", ".jsonc").
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to standardize jsonc: %w", err)
		}
		if err := json.Unmarshal(std, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = DefaultStages()
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.set(v); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
		return nil
	}

	str("SCANPIPE_IMAGE_TAG", &c.Environment.ImageTag)
	str("SCANPIPE_READY_URL", &c.Environment.ReadyURL)
	str("SCANPIPE_ARTIFACT_STORE", &c.Artifacts.Store)
	str("SCANPIPE_DB_PASSWORD", &c.Database.Password)
	str("SCANPIPE_MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("SCANPIPE_OPENAI_API_KEY", &c.AI.APIKey)
	if err := dur("SCANPIPE_POLL_INTERVAL", &c.Environment.PollInterval); err != nil {
		return err
	}
	if err := dur("SCANPIPE_READY_TIMEOUT", &c.Environment.ReadyTimeout); err != nil {
		return err
	}

	// threshold override berlaku untuk semua stage dengan kind yang sama
	for _, kind := range []scans.Kind{scans.KindSAST, scans.KindSCA, scans.KindContainer, scans.KindDAST} {
		v, ok := lookup("SCANPIPE_" + strings.ToUpper(string(kind)) + "_THRESHOLD")
		if !ok || v == "" {
			continue
		}
		for i := range c.Stages {
			if strings.EqualFold(c.Stages[i].Kind, string(kind)) {
				c.Stages[i].Threshold = v
			}
		}
	}
	return nil
}

// Validate checks the loaded config and normalizes stage fields.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: server.port %d out of range", c.Server.Port)
	}
	if c.Run.WorkDir == "" || c.Run.LogDir == "" {
		return fmt.Errorf("config error: run.workDir and run.logDir are required")
	}
	if c.Source.Path == "" && c.Source.Repo == "" {
		return fmt.Errorf("config error: source.path or source.repo is required")
	}

	needsEnv := false
	for i := range c.Stages {
		st := &c.Stages[i]
		kind, ok := scans.ParseKind(st.Kind)
		if !ok {
			return fmt.Errorf("config error: stage #%d has unknown kind %q (allowed: sast, sca, container, dast)", i+1, st.Kind)
		}
		st.Kind = string(kind)
		if st.Name == "" {
			st.Name = st.Kind
		}
		if st.Policy == "" {
			st.Policy = string(pipeline.PolicyFatal)
		}
		p, err := pipeline.ParsePolicy(st.Policy)
		if err != nil {
			return fmt.Errorf("config error: stage %q: %w", st.Name, err)
		}
		st.Policy = string(p)
		if st.Threshold == "" {
			st.Threshold = "high"
		}
		if _, ok := scans.ParseSeverity(st.Threshold); !ok {
			return fmt.Errorf("config error: stage %q: unknown threshold %q", st.Name, st.Threshold)
		}
		if st.RequiresEnvironment != nil && *st.RequiresEnvironment && kind != scans.KindDAST {
			return fmt.Errorf("config error: stage %q: only dast stages can require the environment", st.Name)
		}
		if kind == scans.KindDAST && !st.NeedsEnvironment() && st.Endpoint == "" {
			return fmt.Errorf("config error: stage %q: endpoint is required when requiresEnvironment is false", st.Name)
		}
		if kind == scans.KindDAST && !st.NeedsEnvironment() {
			if err := c.checkNotSelf("stages["+st.Name+"].endpoint", st.Endpoint); err != nil {
				return err
			}
		}
		if kind == scans.KindContainer || st.NeedsEnvironment() {
			needsEnv = true
		}
	}

	if needsEnv {
		env := c.Environment
		if env.ImageTag == "" {
			return fmt.Errorf("config error: environment.imageTag is required")
		}
		if env.PollInterval.Duration <= 0 || env.ReadyTimeout.Duration <= 0 {
			return fmt.Errorf("config error: environment.pollInterval and readyTimeout must be positive")
		}
		if env.ReadyURL != "" {
			if u, err := url.Parse(env.ReadyURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("config error: environment.readyUrl %q is not an http(s) URL", env.ReadyURL)
			}
		}
		if err := c.checkNotSelf("environment.readyUrl", env.ReadyURL); err != nil {
			return err
		}
		if err := c.checkNotSelf("environment.endpoint", env.Endpoint); err != nil {
			return err
		}
	}

	switch c.Artifacts.Store {
	case "local":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("config error: artifacts.dir is required for the local store")
		}
	case "minio":
		if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
			return fmt.Errorf("config error: minio.endpoint and minio.bucketName are required for the minio store")
		}
	case "none":
	default:
		return fmt.Errorf("config error: invalid artifacts.store %q; must be one of: local, minio, none", c.Artifacts.Store)
	}
	for i, a := range c.Artifacts.Paths {
		if a.Name == "" || a.Path == "" {
			return fmt.Errorf("config error: artifact #%d needs both name and path", i+1)
		}
	}

	switch c.Database.Driver {
	case "", "mysql", "postgres":
	default:
		return fmt.Errorf("config error: invalid database.driver %q; must be one of: mysql, postgres", c.Database.Driver)
	}
	return nil
}

// checkNotSelf rejects a loopback URL on server.port: the readiness poll or
// the dast scan would hit scanpipe's own API instead of the target.
func (c *Config) checkNotSelf(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	if port != strconv.Itoa(c.Server.Port) || !isLocalHost(u.Hostname()) {
		return nil
	}
	return fmt.Errorf("config error: %s %q points at scanpipe's own server.port %d", field, raw, c.Server.Port)
}

func isLocalHost(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres (lib/pq URL form)
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}
