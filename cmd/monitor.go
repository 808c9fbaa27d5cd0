package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/solana-sos/emergency/internal/auth"
	"github.com/solana-sos/emergency/internal/config"
	ws "github.com/solana-sos/emergency/internal/websocket"
)

var monitorOpts struct {
	server    string
	token     string
	consoleID string
	ready     bool
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Tail coordinator events as a dispatch console",
	Long: `Connects to the server websocket with a dispatcher token and prints every
coordinator event. Without --token a dispatcher token is signed locally with
JWT_SECRET.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := monitorOpts.token
		if token == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, _, err = auth.NewIssuer(cfg.JWTSecret, cfg.DeviceSecret).GenerateDispatcherToken(monitorOpts.consoleID)
			if err != nil {
				return fmt.Errorf("failed to sign dispatcher token: %w", err)
			}
		}
		return monitor(cmd.OutOrStdout(), monitorOpts.server, token)
	},
}

func init() {
	f := monitorCmd.Flags()
	f.StringVar(&monitorOpts.server, "server", "http://localhost:8080", "server base URL")
	f.StringVar(&monitorOpts.token, "token", "", "dispatcher token")
	f.StringVar(&monitorOpts.consoleID, "console-id", "console-cli", "console id for a locally signed token")
	f.BoolVar(&monitorOpts.ready, "ready", false, "signal dispatcher readiness after connecting")
	rootCmd.AddCommand(monitorCmd)
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

func monitor(w io.Writer, server, token string) error {
	wsURL, err := websocketURL(server)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	fmt.Fprintf(w, "Connecting to: %s\n", wsURL)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connection failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connection failed: %w", err)
	}
	defer conn.Close()

	fmt.Fprintln(w, "Connected, waiting for events")

	if monitorOpts.ready {
		if err := conn.WriteJSON(map[string]string{"type": string(ws.MessageTypeDispatcherReady)}); err != nil {
			return fmt.Errorf("failed to signal readiness: %w", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- readEvents(w, conn)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	select {
	case err := <-done:
		return err
	case <-interrupt:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return nil
	}
}

func readEvents(w io.Writer, conn *websocket.Conn) error {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}
		if messageType == websocket.BinaryMessage {
			fmt.Fprintf(w, "audio  %d bytes\n", len(message))
			continue
		}
		printMessage(w, message)
	}
}

func printMessage(w io.Writer, message []byte) {
	var base ws.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		fmt.Fprintf(w, "?      %s\n", message)
		return
	}

	switch base.Type {
	case ws.MessageTypeEvent:
		var msg ws.EventMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			e := msg.Event
			fmt.Fprintf(w, "%s  %-22s status=%-9s category=%s strategy=%s %s\n",
				e.Timestamp.Format(time.TimeOnly), e.Type, e.Status, e.Category, e.Strategy, e.Detail)
			return
		}
	case ws.MessageTypeError:
		var msg ws.ErrorMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			fmt.Fprintf(w, "error  %s: %s\n", msg.Code, msg.Message)
			return
		}
	}
	fmt.Fprintf(w, "%-6s %s\n", base.Type, message)
}
