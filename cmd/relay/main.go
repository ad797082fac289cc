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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kris-nova/logger"
	"github.com/kris-nova/relay"
	"github.com/kris-nova/relay/rtmp"
	"github.com/urfave/cli/v2"
)

func main() {
	if relay.PrintBanner {
		fmt.Println(relay.Banner())
	}
	err := RunWithOptions(instanceOptions)
	if err != nil {
		logger.Critical("%v", err)
		os.Exit(1)
	}
	os.Exit(0)
}

type RuntimeOptions struct {
	// configPath is an optional YAML config file
	configPath string

	// address overrides rtmp.address from the config
	address string

	// socket is the admin socket of a running relay
	socket string

	// file is the FLV file to publish
	file string

	// realtime paces publishing by tag timestamps
	realtime bool
}

var instanceOptions = &RuntimeOptions{}

// Global Flags
var (

	// verbose sets log verbosity
	verbose bool

	globalFlags = []cli.Flag{
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Value:       false,
			Usage:       "toggle verbose mode for logger",
			Destination: &verbose,
		},
	}
)

func RunWithOptions(opt *RuntimeOptions) error {

	// cli assumes "-v" for version.
	// override that here
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "Print the version",
	}

	socketFlag := &cli.StringFlag{
		Name:        "socket",
		Aliases:     []string{"s"},
		Value:       relay.DefaultAdminSocket,
		Usage:       "admin socket of the running relay",
		Destination: &opt.socket,
	}

	app := &cli.App{
		Name:      "relay",
		Usage:     "RTMP relay server. Publish once, play many.",
		UsageText: ``,
		Version:   relay.Version,
		Action: func(c *cli.Context) error {
			cli.ShowSubcommandHelp(c)
			return nil
		},
		Flags: globalFlags,
		Commands: []*cli.Command{

			// ********************************************************
			// [ serve ]
			// ********************************************************

			{
				Name:      "serve",
				Usage:     "Run the relay in the foreground.",
				UsageText: `relay serve [--config relay.yaml] [--address :1935]`,
				Flags: allFlags([]cli.Flag{
					&cli.StringFlag{
						Name:        "config",
						Aliases:     []string{"c"},
						Usage:       "path to a YAML config file",
						Destination: &opt.configPath,
					},
					&cli.StringFlag{
						Name:        "address",
						Aliases:     []string{"a"},
						Usage:       "listen address, overrides rtmp.address. ':1935' 'localhost:1935'",
						Destination: &opt.address,
					},
					&cli.StringFlag{
						Name:        "socket",
						Aliases:     []string{"s"},
						Usage:       "admin socket, overrides admin.socket",
						Destination: &opt.socket,
					},
				}),
				Action: func(c *cli.Context) error {
					config := relay.DefaultConfig()
					if opt.configPath != "" {
						var err error
						config, err = relay.LoadConfig(opt.configPath)
						if err != nil {
							return err
						}
					}
					if opt.address != "" {
						config.RTMP.Address = opt.address
					}
					if opt.socket != "" {
						config.Admin.Socket = opt.socket
					}
					if err := config.Validate(); err != nil {
						return err
					}
					return relay.NewDaemon(config).Run(context.Background())
				},
			},

			// ********************************************************
			// [ streams ]
			// ********************************************************

			{
				Name:      "streams",
				Usage:     "List the streams of a running relay.",
				UsageText: ``,
				Flags:     allFlags([]cli.Flag{socketFlag}),
				Action: func(c *cli.Context) error {
					return withAdmin(opt.socket, func(ctx context.Context, x *relay.AdminClient) error {
						streams, err := x.ListStreams(ctx)
						if err != nil {
							return fmt.Errorf("unable to list streams: %v", err)
						}
						if len(streams) == 0 {
							logger.Always("No active streams")
						}
						for _, s := range streams {
							logger.Always("%s  publisher=%s  subscribers=%d", s.Path, s.Publisher, s.Subscribers)
						}
						return nil
					})
				},
			},

			// ********************************************************
			// [ stats ]
			// ********************************************************

			{
				Name:      "stats",
				Usage:     "Print the counters of a running relay.",
				UsageText: ``,
				Flags:     allFlags([]cli.Flag{socketFlag}),
				Action: func(c *cli.Context) error {
					return withAdmin(opt.socket, func(ctx context.Context, x *relay.AdminClient) error {
						stats, err := x.Stats(ctx)
						if err != nil {
							return fmt.Errorf("unable to read stats: %v", err)
						}
						for _, name := range relay.StatNames {
							logger.Always("%-22s %v", name, stats[name])
						}
						return nil
					})
				},
			},

			// ********************************************************
			// [ key ]
			// ********************************************************

			{
				Name:      "key",
				Aliases:   []string{"k"},
				Usage:     "Manage publish stream keys.",
				UsageText: ``,
				Flags:     allFlags([]cli.Flag{}),
				Action: func(c *cli.Context) error {
					cli.ShowSubcommandHelp(c)
					return nil
				},
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Generate a stream key for a path. Publishing to the path then requires ?key=<key>.",
						UsageText: `relay key add /live/stream`,
						Flags:     allFlags([]cli.Flag{socketFlag}),
						Action: func(c *cli.Context) error {
							args := c.Args()
							if args.Len() != 1 {
								return fmt.Errorf("usage: relay key add <path>")
							}
							path := streamPath(args.Get(0))
							return withAdmin(opt.socket, func(ctx context.Context, x *relay.AdminClient) error {
								key, err := x.SetStreamKey(ctx, path)
								if err != nil {
									return fmt.Errorf("unable to set stream key: %v", err)
								}
								logger.Always("Success!")
								logger.Always("OBS > Settings > Stream")
								logger.Always(" Service:            'Custom'")
								logger.Always(" Stream Key:         '%s?key=%s'", path, key)
								return nil
							})
						},
					},
					{
						Name:      "revoke",
						Usage:     "Remove the stream key of a path.",
						UsageText: `relay key revoke /live/stream`,
						Flags:     allFlags([]cli.Flag{socketFlag}),
						Action: func(c *cli.Context) error {
							args := c.Args()
							if args.Len() != 1 {
								return fmt.Errorf("usage: relay key revoke <path>")
							}
							path := streamPath(args.Get(0))
							return withAdmin(opt.socket, func(ctx context.Context, x *relay.AdminClient) error {
								if err := x.RevokeStreamKey(ctx, path); err != nil {
									return fmt.Errorf("unable to revoke stream key: %v", err)
								}
								logger.Always("Success!")
								return nil
							})
						},
					},
				},
			},

			// ********************************************************
			// [ publish ]
			// ********************************************************

			{
				Name:      "publish",
				Usage:     "Publish an FLV file to an RTMP server.",
				UsageText: `relay publish --file video.flv rtmp://localhost:1935/live/stream`,
				Flags: allFlags([]cli.Flag{
					&cli.StringFlag{
						Name:        "file",
						Aliases:     []string{"f"},
						Usage:       "FLV file to publish",
						Required:    true,
						Destination: &opt.file,
					},
					&cli.BoolFlag{
						Name:        "realtime",
						Value:       true,
						Usage:       "send tags at the pace of their timestamps",
						Destination: &opt.realtime,
					},
				}),
				Action: func(c *cli.Context) error {
					args := c.Args()
					if args.Len() != 1 {
						return fmt.Errorf("usage: relay publish --file <flv> <url>")
					}
					ctx, cancel := signalContext()
					defer cancel()
					return publish(ctx, args.Get(0), opt.file, opt.realtime)
				},
			},

			// ********************************************************
			// [ play ]
			// ********************************************************

			{
				Name:      "play",
				Usage:     "Play a stream from an RTMP server and log what arrives.",
				UsageText: `relay play rtmp://localhost:1935/live/stream`,
				Flags:     allFlags([]cli.Flag{}),
				Action: func(c *cli.Context) error {
					args := c.Args()
					if args.Len() != 1 {
						return fmt.Errorf("usage: relay play <url>")
					}
					ctx, cancel := signalContext()
					defer cancel()
					return play(ctx, args.Get(0))
				},
			},
		},
	}

	app.Flags = globalFlags
	initCommands(app.Commands)
	return app.Run(os.Args)
}

// initCommands applies the global flags once a command has parsed its own.
func initCommands(commands []*cli.Command) {
	for _, command := range commands {
		command.Before = func(c *cli.Context) error {
			allInit()
			return nil
		}
		initCommands(command.Subcommands)
	}
}

func streamPath(path string) string {
	return "/" + strings.TrimPrefix(path, "/")
}

func withAdmin(socket string, fn func(context.Context, *relay.AdminClient) error) error {
	ctx := context.Background()
	x, err := relay.DialAdmin(ctx, socket)
	if err != nil {
		return fmt.Errorf("unable to find running relay: %v", err)
	}
	defer x.Close()
	return fn(ctx, x)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func dialStream(ctx context.Context, url string) (*rtmp.Client, error) {
	client, err := rtmp.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect: %v", err)
	}
	if _, err := client.CreateStream(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("createStream: %v", err)
	}
	return client, nil
}

func publish(ctx context.Context, url, file string, realtime bool) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	client, err := dialStream(ctx, url)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Publish(ctx, ""); err != nil {
		return fmt.Errorf("publish: %v", err)
	}
	if err := client.SetChunkSize(rtmp.DefaultRTMPChunkSizeBytesLarge); err != nil {
		return err
	}
	logger.Always("Publishing %s to %s", file, client.URLAddr().SafeURL())

	reader := rtmp.NewFLVReader(f)
	start := time.Now()
	var tags int
	for {
		tag, err := reader.ReadTag()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if realtime {
			wait := time.Until(start.Add(time.Duration(tag.Timestamp) * time.Millisecond))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil
			}
		}
		if err := client.WriteFLVTag(tag); err != nil {
			return fmt.Errorf("write %s tag: %v", tag.MediaType, err)
		}
		tags++
	}
	logger.Success("Published %d tags", tags)
	return client.DeleteStream()
}

func play(ctx context.Context, url string) error {
	client, err := dialStream(ctx, url)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Play(ctx, ""); err != nil {
		return fmt.Errorf("play: %v", err)
	}
	logger.Always("Playing %s", client.URLAddr().SafeURL())
	for {
		msg, err := client.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logger.Info("%s ts=%d bytes=%d", msg.TypeID, msg.Timestamp, len(msg.Payload))
	}
}

func allInit() {
	if verbose {
		logger.BitwiseLevel = logger.LogEverything
		logger.Info("VERBOSE MODE ENABLED")
	} else {
		logger.BitwiseLevel = logger.LogAlways | logger.LogCritical | logger.LogDeprecated | logger.LogSuccess | logger.LogWarning
	}
}

func allFlags(flags []cli.Flag) []cli.Flag {
	return append(globalFlags, flags...)
}
