package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/lanLinker/pkg/cancel"
	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/medium"
	"github.com/rescp17/lanLinker/pkg/medium/bluetooth"
	"github.com/rescp17/lanLinker/pkg/medium/memlink"
	"github.com/rescp17/lanLinker/pkg/medium/wifilan"
	"github.com/rescp17/lanLinker/pkg/ui"
)

// newMedium selects the transport backend for a command. Bluetooth addresses
// are device MACs and ports are RFCOMM channels.
func newMedium(kind string) (medium.Medium, error) {
	switch kind {
	case "wifilan":
		return wifilan.New(), nil
	case "bluetooth":
		return bluetooth.New(), nil
	default:
		return nil, fmt.Errorf("unknown medium %q (want wifilan or bluetooth)", kind)
	}
}

func main() {
	f, _ := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	log.SetOutput(f)

	var name string
	var port int
	var mediumKind string
	cmd := &cobra.Command{
		Use:   "lanlinker",
		Short: "Advertise, discover and connect to nearby services",
	}
	cmd.PersistentFlags().StringVar(&name, "name", "", "Service instance name")
	cmd.PersistentFlags().IntVar(&port, "port", 4242, "Service port (RFCOMM channel for bluetooth)")
	cmd.PersistentFlags().StringVar(&mediumKind, "medium", "wifilan", "Transport backend: wifilan or bluetooth")

	advertiseCmd := &cobra.Command{
		Use:   "advertise",
		Short: "Publish this host as a discoverable service",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMedium(mediumKind)
			if err != nil {
				return err
			}
			defer m.Close()
			info := discovery.NewServiceInfo(name, "", port, map[string][]byte{
				"name": []byte(name),
			})
			if err := m.StartAdvertising(info); err != nil {
				return err
			}
			fmt.Printf("advertising %q on port %d, ctrl+c to stop\n", info.Name, port)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			<-ctx.Done()
			return m.StopAdvertising(info)
		},
	}

	browseCmd := &cobra.Command{
		Use:   "browse",
		Short: "Watch nearby services appear and disappear",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMedium(mediumKind)
			if err != nil {
				return err
			}
			defer m.Close()
			p := tea.NewProgram(ui.NewBrowseModel(m))
			_, err = p.Run()
			return err
		},
	}

	var serviceID string
	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept one connection and dump its bytes to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMedium(mediumKind)
			if err != nil {
				return err
			}
			defer m.Close()
			srv, err := m.ListenForService(serviceID)
			if err != nil {
				return err
			}
			defer srv.Close()
			fmt.Fprintf(os.Stderr, "listening as %q on %s\n", serviceID, srv.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			go func() {
				<-ctx.Done()
				srv.Close()
			}()

			sock, err := srv.Accept()
			if err != nil {
				return err
			}
			defer sock.Close()
			in, err := sock.Input()
			if err != nil {
				return err
			}
			for {
				chunk, err := in.Read(32 * 1024)
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				if _, err := os.Stdout.Write(chunk); err != nil {
					return err
				}
			}
		},
	}
	listenCmd.Flags().StringVar(&serviceID, "id", "lanlinker-default", "Logical service identifier")

	var addr string
	var timeout time.Duration
	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a service and send stdin to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMedium(mediumKind)
			if err != nil {
				return err
			}
			defer m.Close()

			tok := cancel.NewToken()
			timer := time.AfterFunc(timeout, tok.Cancel)
			defer timer.Stop()

			info := discovery.NewServiceInfo(name, addr, port, nil)
			sock, err := m.ConnectToService(info, tok)
			if err != nil {
				return err
			}
			defer sock.Close()

			out, err := sock.Output()
			if err != nil {
				return err
			}
			buf := make([]byte, 32*1024)
			for {
				n, rerr := os.Stdin.Read(buf)
				if n > 0 {
					if err := out.Write(buf[:n]); err != nil {
						return err
					}
					if err := out.Flush(); err != nil {
						return err
					}
				}
				if rerr != nil {
					if errors.Is(rerr, io.EOF) {
						return nil
					}
					return rerr
				}
			}
		},
	}
	connectCmd.Flags().StringVar(&addr, "addr", "", "Service address")
	connectCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Connect timeout")
	_ = connectCmd.MarkFlagRequired("addr")

	selftestCmd := &cobra.Command{
		Use:   "selftest",
		Short: "Exercise the full medium lifecycle on an in-process link",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelftest(cmd.Context())
		},
	}

	cmd.AddCommand(advertiseCmd)
	cmd.AddCommand(browseCmd)
	cmd.AddCommand(listenCmd)
	cmd.AddCommand(connectCmd)
	cmd.AddCommand(selftestCmd)

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

// runSelftest drives advertise, discovery, listen, connect and a byte-echo
// over a memlink bus, failing if any lifecycle step misbehaves.
func runSelftest(ctx context.Context) error {
	bus := memlink.NewBus()
	server := memlink.New(bus)
	client := memlink.New(bus)
	defer server.Close()
	defer client.Close()

	srv, err := server.ListenForService("selftest")
	if err != nil {
		return err
	}
	host, port, err := server.ServiceAddress()
	if err != nil {
		return err
	}
	info := discovery.NewServiceInfo("selftest-peer", host, port, map[string][]byte{
		"role": []byte("selftest"),
	})
	if err := server.StartAdvertising(info); err != nil {
		return err
	}

	found := make(chan discovery.ServiceInfo, 1)
	sub, err := client.StartDiscovery(medium.Callback{
		OnFound: func(si discovery.ServiceInfo) {
			select {
			case found <- si:
			default:
			}
		},
	})
	if err != nil {
		return err
	}

	var target discovery.ServiceInfo
	select {
	case target = <-found:
	case <-time.After(2 * time.Second):
		return errors.New("selftest: service was not discovered")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := client.StopDiscovery(sub); err != nil {
		return err
	}

	payload := []byte("lanlinker selftest payload")
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		sock, err := srv.Accept()
		if err != nil {
			return err
		}
		defer sock.Close()
		in, err := sock.Input()
		if err != nil {
			return err
		}
		var got []byte
		for len(got) < len(payload) {
			chunk, err := in.Read(len(payload))
			if err != nil {
				return err
			}
			got = append(got, chunk...)
		}
		if string(got) != string(payload) {
			return errors.New("selftest: payload mismatch")
		}
		return nil
	})
	g.Go(func() error {
		sock, err := client.ConnectToService(target, nil)
		if err != nil {
			return err
		}
		defer sock.Close()
		out, err := sock.Output()
		if err != nil {
			return err
		}
		if err := out.Write(payload); err != nil {
			return err
		}
		return out.Flush()
	})
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("selftest ok")
	return nil
}
