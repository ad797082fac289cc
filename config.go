// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package relay

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/kris-nova/relay/rtmp"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAdminSocket  string = "/var/run/relay.sock"
	DefaultAdminPIDFile string = "/var/run/relay.pid"
)

// Config is the relay configuration file.
//
//   rtmp:
//     address: ":1935"
//     require_stream_key: true
//     media:
//       max_count: 512
//   admin:
//     socket: /var/run/relay.sock
type Config struct {
	RTMP  rtmp.Config `yaml:"rtmp"`
	Admin AdminConfig `yaml:"admin"`
}

type AdminConfig struct {
	Socket  string `yaml:"socket"`
	PIDFile string `yaml:"pid_file"`
}

func DefaultConfig() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// LoadConfig reads a YAML config file. Unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config %s: %v", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	c := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("invalid config: %v", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) SetDefaults() {
	c.RTMP.SetDefaults()
	if c.Admin.Socket == "" {
		c.Admin.Socket = DefaultAdminSocket
	}
	if c.Admin.PIDFile == "" {
		c.Admin.PIDFile = DefaultAdminPIDFile
	}
}

func (c *Config) Validate() error {
	return c.RTMP.Validate()
}
