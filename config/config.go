// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// a type with librarian-wide service configuration parameters
type serviceConfig struct {
	// descriptive name of this librarian instance
	Name string `yaml:"name"`
	// port on which the service listens
	Port int `yaml:"port,omitempty"`
	// maximum number of allowed incoming connections
	// default: 100
	MaxConnections int `yaml:"max_connections,omitempty"`
	// maximum size of an uploaded file, past which stage requests are
	// rejected (bytes)
	MaxUploadSize int64 `yaml:"max_upload_size,omitempty"`
	// maximum number of results returned by search/file, regardless of what
	// the caller requests
	MaxSearchResults int `yaml:"max_search_results,omitempty"`
	// polling interval for the background scheduler (seconds)
	// default: 30s
	PollInterval int `yaml:"poll_interval"`
	// name of an existing directory in which the librarian can store
	// persistent local data (the bbolt error/corrupt-file journal, etc.)
	DataDirectory string `yaml:"data_directory"`
	// base64-encoded fernet key used to encrypt/decrypt peer authenticators
	AuthenticatorKey string `yaml:"authenticator_key"`
	// bcrypt hash of the single administrator account's password, granting
	// auth.Admin level (clearing errors, managing librarians) over HTTP basic
	// auth with username "admin"
	AdminAuthenticator string `yaml:"admin_authenticator"`
	// flag indicating whether debug logging is enabled
	Debug bool `yaml:"debug"`
}

// global config variables, populated by Init
var Service serviceConfig
var Stores map[string]storeConfig
var Librarians map[string]librarianConfig
var Database databaseConfig

// This struct performs the unmarshalling from the YAML config file and then
// copies its fields to the globals above.
type configFile struct {
	Librarian  serviceConfig              `yaml:"librarian"`
	Stores     map[string]storeConfig     `yaml:"stores"`
	Librarians map[string]librarianConfig `yaml:"librarians"`
	Database   databaseConfig             `yaml:"database"`
}

// This helper locates and reads a configuration file, returning an error
// indicating success or failure. All environment variables of the form
// ${ENV_VAR} are expanded.
func readConfig(bytes []byte) error {
	// before we do anything else, expand any provided environment variables
	bytes = []byte(os.ExpandEnv(string(bytes)))

	var conf configFile
	conf.Librarian.Port = 8080
	conf.Librarian.MaxConnections = 100
	conf.Librarian.MaxUploadSize = 1 << 40 // 1 TiB
	conf.Librarian.MaxSearchResults = 1000
	conf.Librarian.PollInterval = int(30 * time.Second / time.Second)
	conf.Database.Driver = "sqlite"
	err := yaml.Unmarshal(bytes, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	// copy the config data into place, performing any needed conversions
	Service = conf.Librarian
	Stores = conf.Stores
	for name, s := range Stores {
		if s.Type == "" {
			s.Type = "local"
			Stores[name] = s
		}
	}
	Librarians = conf.Librarians
	Database = conf.Database

	return err
}

func validateServiceParameters(params serviceConfig) error {
	if params.Port < 0 || params.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535)", params.Port)
	}
	if params.MaxConnections <= 0 {
		return fmt.Errorf("invalid max_connections: %d (must be positive)",
			params.MaxConnections)
	}
	if params.PollInterval <= 0 {
		return fmt.Errorf("non-positive poll interval specified: (%d s)",
			params.PollInterval)
	}
	if params.DataDirectory == "" {
		return fmt.Errorf("no data_directory specified")
	}
	return nil
}

func validateStores(stores map[string]storeConfig) error {
	if len(stores) == 0 {
		return fmt.Errorf("no stores configured")
	}
	for name, s := range stores {
		switch s.Type {
		case "local":
			if s.Root == "" {
				return fmt.Errorf("store '%s' has no root directory", name)
			}
		default:
			return fmt.Errorf("store '%s' has unsupported type '%s'", name, s.Type)
		}
	}
	return nil
}

func validateLibrarians(librarians map[string]librarianConfig) error {
	for name, l := range librarians {
		if l.Url == "" {
			return fmt.Errorf("librarian '%s' has no url", name)
		}
	}
	return nil
}

func validateDatabase(db databaseConfig) error {
	if db.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver '%s'", db.Driver)
	}
	if db.Dsn == "" {
		return fmt.Errorf("no database dsn specified")
	}
	return nil
}

// This helper validates the given configfile, returning an error that indicates
// success or failure.
func validateConfig() error {
	err := validateServiceParameters(Service)
	if err != nil {
		return err
	}
	err = validateStores(Stores)
	if err != nil {
		return err
	}
	err = validateLibrarians(Librarians)
	if err != nil {
		return err
	}
	return validateDatabase(Database)
}

// Initializes the librarian's configuration using the given YAML byte data.
func Init(yamlData []byte) error {
	err := readConfig(yamlData)
	if err != nil {
		return err
	}
	return validateConfig()
}
