package preview

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

const maxReconnectDelay = 30 * time.Second

// ErrNoVideo is returned when the stream has no usable video media.
var ErrNoVideo = errors.New("preview: stream has no video media")

// Source pulls the camera's RTSP stream over interleaved TCP and hands every
// RTP packet to a Hub. A dropped stream is retried with exponential backoff.
type Source struct {
	url    *base.URL
	hub    *Hub
	log    zerolog.Logger
	stopCh chan struct{}

	mu      sync.Mutex
	client  *gortsplib.Client
	stopped bool
}

// NewSource validates rawURL and prepares a source feeding hub.
func NewSource(rawURL string, hub *Hub, logger zerolog.Logger) (*Source, error) {
	u, err := base.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid RTSP URL: %w", err)
	}
	return &Source{
		url:    u,
		hub:    hub,
		log:    logger.With().Str("component", "preview").Str("url", rawURL).Logger(),
		stopCh: make(chan struct{}),
	}, nil
}

// Connect opens the stream and starts playing. Reconnection runs in the
// background until Close.
func (s *Source) Connect() error {
	if err := s.connect(); err != nil {
		return err
	}
	return nil
}

// pickVideo prefers H264/H265 and falls back to the first video media.
func pickVideo(desc *description.Session) *description.Media {
	for _, media := range desc.Medias {
		for _, f := range media.Formats {
			switch f.(type) {
			case *format.H264, *format.H265:
				return media
			}
		}
	}
	for _, media := range desc.Medias {
		if media.Type == description.MediaTypeVideo && len(media.Formats) > 0 {
			return media
		}
	}
	return nil
}

func (s *Source) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("preview: source closed")
	}

	transport := gortsplib.TransportTCP
	client := &gortsplib.Client{
		Transport:    &transport,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		OnDecodeError: func(err error) {
			s.log.Debug().Err(err).Msg("decode error")
		},
	}

	if err := client.Start(s.url.Scheme, s.url.Host); err != nil {
		return fmt.Errorf("rtsp start: %w", err)
	}

	desc, _, err := client.Describe(s.url)
	if err != nil {
		client.Close()
		return fmt.Errorf("rtsp describe: %w", err)
	}

	media := pickVideo(desc)
	if media == nil {
		client.Close()
		return ErrNoVideo
	}

	if _, err := client.Setup(desc.BaseURL, media, 0, 0); err != nil {
		client.Close()
		return fmt.Errorf("rtsp setup: %w", err)
	}

	client.OnPacketRTPAny(func(_ *description.Media, _ format.Format, pkt *rtp.Packet) {
		buf, err := pkt.Marshal()
		if err != nil {
			return
		}
		s.hub.Broadcast(buf)
	})

	if _, err := client.Play(nil); err != nil {
		client.Close()
		return fmt.Errorf("rtsp play: %w", err)
	}

	s.client = client
	s.log.Info().Msg("stream playing")

	go s.monitor(client)
	return nil
}

// backoff returns the wait before reconnect attempt n (1-based).
func backoff(attempt int) time.Duration {
	if attempt > 6 {
		return maxReconnectDelay
	}
	return min(time.Duration(1<<uint(attempt-1))*time.Second, maxReconnectDelay)
}

func (s *Source) monitor(client *gortsplib.Client) {
	err := client.Wait()

	select {
	case <-s.stopCh:
		return
	default:
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("stream lost")
	}

	for attempt := 1; ; attempt++ {
		delay := backoff(attempt)
		s.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")

		select {
		case <-s.stopCh:
			return
		case <-time.After(delay):
		}

		if err := s.connect(); err != nil {
			s.log.Warn().Err(err).Msg("reconnect failed")
			continue
		}
		return
	}
}

// Close stops the stream and any pending reconnect.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	client := s.client
	s.mu.Unlock()

	close(s.stopCh)
	if client != nil {
		client.Close()
	}
	return nil
}
