package websocket

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
	"github.com/solana-sos/emergency/internal/auth"
)

// RemoteAudioDevice drives the audio routing of connected front-end devices
// by sending them audio commands over the hub.
type RemoteAudioDevice struct {
	hub    *Hub
	logger *zap.Logger
}

var _ repositories.AudioDevice = (*RemoteAudioDevice)(nil)

// NewRemoteAudioDevice creates an audio device backed by the hub
func NewRemoteAudioDevice(hub *Hub, logger *zap.Logger) *RemoteAudioDevice {
	return &RemoteAudioDevice{hub: hub, logger: logger}
}

// Open implements repositories.AudioDevice. Devices connect on their own
// schedule, so there is nothing to open.
func (d *RemoteAudioDevice) Open(ctx context.Context) error {
	d.logger.Info("Remote audio device ready",
		zap.Int("connectedDevices", d.hub.ClientCount(auth.RoleDevice)))
	return nil
}

// ForceOutputVolume implements repositories.AudioDevice
func (d *RemoteAudioDevice) ForceOutputVolume(ctx context.Context, level float32) error {
	return d.send(AudioCommandMessage{Command: CommandSetVolume, Level: &level})
}

// RestoreUserVolume implements repositories.AudioDevice
func (d *RemoteAudioDevice) RestoreUserVolume(ctx context.Context, level float32) error {
	return d.send(AudioCommandMessage{Command: CommandRestoreVolume, Level: &level})
}

// AdjustMicrophoneGain implements repositories.AudioDevice
func (d *RemoteAudioDevice) AdjustMicrophoneGain(ctx context.Context, profile entities.MicrophoneProfile) error {
	return d.send(AudioCommandMessage{Command: CommandOptimizeInput, Profile: &profile})
}

func (d *RemoteAudioDevice) send(cmd AudioCommandMessage) error {
	cmd.BaseMessage = newBase(MessageTypeAudioCommand)
	cmd.MessageID = uuid.NewString()

	sent := d.hub.broadcast(func(client *Client) bool {
		return client.role == auth.RoleDevice
	}, WriteData{Type: websocket.TextMessage, Payload: marshal(cmd)})
	if sent == 0 {
		return fmt.Errorf("%w: no front-end device accepted %s", domain.ErrDevice, cmd.Command)
	}

	d.logger.Info("Audio command sent",
		zap.String("command", cmd.Command),
		zap.String("commandID", cmd.MessageID),
		zap.Int("devices", sent))
	return nil
}
