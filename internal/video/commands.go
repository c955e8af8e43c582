package video

import (
	"encoding/json"
	"math"

	"github.com/google/uuid"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/apperr"
)

// Control is a playback-control command. Each variant carries only the field
// its kind needs.
type Control interface {
	// Type is the kind recorded in the room's event log.
	Type() models.VideoEventType
	// Event is the real-time event name broadcast to the video channel.
	Event() string
	validate() error
	apply(p *models.PlaybackState)
	logData() interface{}
	broadcast(userID uuid.UUID, at int64) interface{}
}

// Play resumes playback at Position seconds.
type Play struct{ Position float64 }

// Pause stops playback at Position seconds.
type Pause struct{ Position float64 }

// Seek moves the playhead to Position seconds.
type Seek struct{ Position float64 }

// Volume sets the volume in [0, 1].
type Volume struct{ Level float64 }

// Rate sets the playback rate.
type Rate struct{ Rate float64 }

// PositionPayload is broadcast for play, pause and seek.
type PositionPayload struct {
	CurrentTime float64   `json:"currentTime"`
	UserID      uuid.UUID `json:"userId"`
	Timestamp   int64     `json:"timestamp"`
}

// VolumePayload is broadcast for volume changes.
type VolumePayload struct {
	Volume    float64   `json:"volume"`
	UserID    uuid.UUID `json:"userId"`
	Timestamp int64     `json:"timestamp"`
}

// RatePayload is broadcast for rate changes.
type RatePayload struct {
	Rate      float64   `json:"rate"`
	UserID    uuid.UUID `json:"userId"`
	Timestamp int64     `json:"timestamp"`
}

type positionData struct {
	Timestamp float64 `json:"timestamp"`
}

type volumeData struct {
	Volume float64 `json:"volume"`
}

type rateData struct {
	Rate float64 `json:"rate"`
}

func validPosition(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return apperr.Validation("timestamp must be a non-negative number")
	}
	return nil
}

// Type returns the play log kind.
func (Play) Type() models.VideoEventType {
	return models.EventPlay
}

// Event returns the play broadcast event name.
func (Play) Event() string {
	return models.EventVideoPlay
}

func (c Play) validate() error {
	return validPosition(c.Position)
}

func (c Play) logData() interface{} {
	return positionData{c.Position}
}

func (c Play) apply(p *models.PlaybackState) {
	p.IsPlaying = true
	p.CurrentTime = c.Position
}

func (c Play) broadcast(userID uuid.UUID, at int64) interface{} {
	return PositionPayload{CurrentTime: c.Position, UserID: userID, Timestamp: at}
}

// Type returns the pause log kind.
func (Pause) Type() models.VideoEventType {
	return models.EventPause
}

// Event returns the pause broadcast event name.
func (Pause) Event() string {
	return models.EventVideoPause
}

func (c Pause) validate() error {
	return validPosition(c.Position)
}

func (c Pause) logData() interface{} {
	return positionData{c.Position}
}

func (c Pause) apply(p *models.PlaybackState) {
	p.IsPlaying = false
	p.CurrentTime = c.Position
}

func (c Pause) broadcast(userID uuid.UUID, at int64) interface{} {
	return PositionPayload{CurrentTime: c.Position, UserID: userID, Timestamp: at}
}

// Type returns the seek log kind.
func (Seek) Type() models.VideoEventType {
	return models.EventSeek
}

// Event returns the seek broadcast event name.
func (Seek) Event() string {
	return models.EventVideoSeek
}

func (c Seek) validate() error {
	return validPosition(c.Position)
}

func (c Seek) logData() interface{} {
	return positionData{c.Position}
}

func (c Seek) apply(p *models.PlaybackState) {
	p.CurrentTime = c.Position
}

func (c Seek) broadcast(userID uuid.UUID, at int64) interface{} {
	return PositionPayload{CurrentTime: c.Position, UserID: userID, Timestamp: at}
}

// Type returns the volume log kind.
func (Volume) Type() models.VideoEventType {
	return models.EventVolume
}

// Event returns the volume broadcast event name.
func (Volume) Event() string {
	return models.EventVideoVolumeChange
}

func (c Volume) validate() error {
	if math.IsNaN(c.Level) || c.Level < 0 || c.Level > 1 {
		return apperr.Validation("volume must be between 0 and 1")
	}
	return nil
}

func (c Volume) logData() interface{} {
	return volumeData{c.Level}
}

func (c Volume) apply(p *models.PlaybackState) {
	p.Volume = c.Level
}

func (c Volume) broadcast(userID uuid.UUID, at int64) interface{} {
	return VolumePayload{Volume: c.Level, UserID: userID, Timestamp: at}
}

// Type returns the rate log kind.
func (Rate) Type() models.VideoEventType {
	return models.EventRate
}

// Event returns the rate broadcast event name.
func (Rate) Event() string {
	return models.EventVideoRateChange
}

func (c Rate) validate() error {
	if math.IsNaN(c.Rate) || math.IsInf(c.Rate, 0) || c.Rate <= 0 {
		return apperr.Validation("rate must be positive")
	}
	return nil
}

func (c Rate) logData() interface{} {
	return rateData{c.Rate}
}

func (c Rate) apply(p *models.PlaybackState) {
	p.PlaybackRate = c.Rate
}

func (c Rate) broadcast(userID uuid.UUID, at int64) interface{} {
	return RatePayload{Rate: c.Rate, UserID: userID, Timestamp: at}
}

func eventData(c Control) json.RawMessage {
	b, err := json.Marshal(c.logData())
	if err != nil {
		return nil
	}
	return b
}
