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

package rtmp

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gwuhaolin/livego/utils/uid"
)

// URLAddr is a flexible RTMP address that resembles url.URL.
//
//   rtmp://host:port/app/key?arg=value
//
// Every part is optional. Missing parts fall back to the defaults, and a
// missing key is generated.
type URLAddr struct {
	// raw can be any string, which we hope we can turn into a valid *URLAddr
	raw string

	// scheme should always be DefaultScheme "rtmp://"
	scheme string

	// host is the host:port combination for the server
	// host should be valid with net.Listen() and net.Dial()
	host string

	// app is the first parameter to the RTMP URL
	app string

	// key is the 2nd and final parameter to the RTMP URL, including any
	// query string
	key string
}

func NewURLAddr(raw string) (*URLAddr, error) {
	rest := raw
	scheme := DefaultScheme
	if i := strings.Index(rest, "://"); i >= 0 {
		scheme = rest[:i]
		rest = rest[i+3:]
		if scheme != DefaultScheme {
			return nil, fmt.Errorf("unsupported scheme: %s", scheme)
		}
	}

	var host, app, key string
	splt := strings.SplitN(rest, "/", 3)
	switch len(splt) {
	case 3:
		host, app, key = splt[0], splt[1], splt[2]
	case 2:
		host, app = splt[0], splt[1]
	default:
		host = splt[0]
	}
	if strings.Contains(key, "/") {
		return nil, fmt.Errorf("too many slashes: %s", raw)
	}

	if host == "" {
		host = fmt.Sprintf("%s:%s", DefaultLocalHost, DefaultLocalPort)
	}
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		if !strings.Contains(err.Error(), "missing port in address") {
			return nil, fmt.Errorf("split host port: %v", err)
		}
		h, port = host, DefaultLocalPort
	}
	if h == "" {
		h = DefaultLocalHost
	}
	if port == "" {
		port = DefaultLocalPort
	}
	host = net.JoinHostPort(h, port)

	if app == "" {
		app = DefaultRTMPApp
	}
	if key == "" {
		key = generateKey()
	}
	return &URLAddr{
		raw:    raw,
		scheme: scheme,
		host:   host,
		app:    app,
		key:    key,
	}, nil
}

func (a *URLAddr) Network() string {
	return DefaultProtocol
}

func (a *URLAddr) String() string {
	return a.host
}

// Host will return a net.Listener compatible host string as verbosely as possible.
// Given inputs such as:
//   localhost
//   localhost:1935
//   :1935
// We should see
//   localhost:1935
func (a *URLAddr) Host() string {
	return a.host
}

func (a *URLAddr) App() string {
	return a.app
}

func (a *URLAddr) Key() string {
	return a.key
}

// TCURL is the tcUrl sent with connect.
//  rtmp://localhost:1935/app
func (a *URLAddr) TCURL() string {
	return fmt.Sprintf("%s://%s/%s", a.scheme, a.host, a.app)
}

// SafeURL will log the StreamURL() without the key.
//  rtmp://localhost:1935/app/[obfuscated]
func (a *URLAddr) SafeURL() string {
	return fmt.Sprintf("%s://%s/%s", a.scheme, a.host, a.app)
}

// StreamURL is a resolvable stream URL that can be played, published, or proxied.
//  rtmp://localhost:1935/app/key
func (a *URLAddr) StreamURL() string {
	return fmt.Sprintf("%s://%s/%s/%s", a.scheme, a.host, a.app, a.key)
}

// generateKey will generate a random stream key
func generateKey() string {
	return fmt.Sprintf("%s%s", DefaultGenerateKeyPrefix, uid.RandStringRunes(DefaultGenerateKeyLength))
}

// ParseStreamName splits "name?k=v&k2=v2" into the name and its arguments.
// Repeated arguments keep the first value.
func ParseStreamName(raw string) (string, map[string]string) {
	args := make(map[string]string)
	name := raw
	if i := strings.Index(raw, "?"); i >= 0 {
		name = raw[:i]
		values, err := url.ParseQuery(raw[i+1:])
		if err == nil {
			for k, v := range values {
				if len(v) > 0 {
					args[k] = v[0]
				}
			}
		}
	}
	return name, args
}

// StreamPath is the registry key of a stream: /app/name
func StreamPath(app, name string) string {
	return fmt.Sprintf("/%s/%s", strings.Trim(app, "/"), strings.Trim(name, "/"))
}
