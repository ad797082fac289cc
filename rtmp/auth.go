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
	"time"

	"github.com/gwuhaolin/livego/utils/uid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// StreamKeyLength is the length of keys generated by StreamKeys.SetKey.
const StreamKeyLength = 48

// Authorizer decides whether a session may publish or play a stream path.
// A non nil error is reported to the peer and the request is refused.
type Authorizer interface {
	AuthorizePublish(session *ClientSession, path string, args map[string]string) error
	AuthorizePlay(session *ClientSession, path string, args map[string]string) error
}

// AllowAll authorizes every request.
type AllowAll struct{}

func (AllowAll) AuthorizePublish(*ClientSession, string, map[string]string) error { return nil }
func (AllowAll) AuthorizePlay(*ClientSession, string, map[string]string) error    { return nil }

// StreamKeys maps stream paths to the key a publisher must present as the
// "key" stream argument: rtmp://host/app/name?key=<key>
type StreamKeys struct {
	cache *cache.Cache
}

func NewStreamKeys() *StreamKeys {
	return &StreamKeys{
		cache: cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// SetKey generates a new key for path, replacing any previous one.
func (k *StreamKeys) SetKey(path string) string {
	key := uid.RandStringRunes(StreamKeyLength)
	k.cache.Set(path, key, cache.NoExpiration)
	return key
}

func (k *StreamKeys) GetKey(path string) (string, bool) {
	v, ok := k.cache.Get(path)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// DeleteKey revokes the key of path. It reports whether one existed.
func (k *StreamKeys) DeleteKey(path string) bool {
	if _, ok := k.cache.Get(path); !ok {
		return false
	}
	k.cache.Delete(path)
	return true
}

func (k *StreamKeys) AuthorizePublish(_ *ClientSession, path string, args map[string]string) error {
	key, ok := k.GetKey(path)
	if !ok {
		return errors.Wrapf(ErrUnauthorized, "no stream key for %s", path)
	}
	if args["key"] != key {
		return errors.Wrapf(ErrUnauthorized, "invalid stream key for %s", path)
	}
	return nil
}

// AuthorizePlay allows everyone. Keys only guard publishing.
func (k *StreamKeys) AuthorizePlay(*ClientSession, string, map[string]string) error {
	return nil
}
