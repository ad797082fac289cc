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
	"fmt"
	"strings"
)

// Version is set at compile time in the associated Makefile
// Do not change this!
var Version string

// PrintBanner can be turned off for scripted use of the command line.
var PrintBanner bool = true

const bannerWidth = 44

func Banner() string {
	version := Version
	if version == "" {
		version = "dev"
	}
	line := func(s string) string {
		if n := bannerWidth - 2 - len([]rune(s)); n > 0 {
			s += strings.Repeat(" ", n)
		}
		return fmt.Sprintf("┃ %s ┃\n", s)
	}

	var str string
	str += "\n"
	str += "┏" + strings.Repeat("━", bannerWidth) + "┓\n"
	str += line("")
	str += line("██████╗ ███████╗██╗      █████╗ ██╗   ██╗")
	str += line("██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝")
	str += line("██████╔╝█████╗  ██║     ███████║ ╚████╔╝")
	str += line("██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝")
	str += line("██║  ██║███████╗███████╗██║  ██║   ██║")
	str += line("╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝")
	str += line("  An RTMP ingest and relay server.")
	str += "┣" + strings.Repeat("━", bannerWidth) + "┫\n"
	str += line("Version : " + version)
	str += "┗" + strings.Repeat("━", bannerWidth) + "┛\n"
	str += "\n"
	return str
}
