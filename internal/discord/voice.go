package discord

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"layeh.com/gopus"

	"github.com/snarg/scanmap/internal/storage"
)

// Discord voice is 48 kHz stereo Opus in 20 ms frames.
const (
	opusSampleRate = 48000
	opusChannels   = 2
	opusFrameSize  = 960 // samples per channel per 20 ms frame
	// opusFrameBytes is the PCM input for one frame: 960 samples x 2
	// channels x 2 bytes.
	opusFrameBytes = opusFrameSize * opusChannels * 2

	// relayQueueDepth bounds pending calls per voice channel. When the
	// queue is full the oldest call is dropped; listeners want current
	// traffic, not a backlog.
	relayQueueDepth = 16
)

type relayJob struct {
	callID   int64
	audioKey string
}

type relayChannel struct {
	queue chan relayJob
	done  chan struct{}
}

// VoiceRelay plays finished call audio into voice channels. Users opt a
// voice channel into a talkgroup via the Listen Live button; every
// finished call on that talkgroup is then queued for playback. Audio is
// decoded to PCM by an ffmpeg child and Opus-encoded for Discord.
type VoiceRelay struct {
	session *discordgo.Session
	store   storage.AudioStore
	guildID string
	ffmpeg  string
	log     zerolog.Logger

	mu       sync.Mutex
	channels map[string]*relayChannel   // voice channel id -> player
	subs     map[string]map[string]bool // talkgroup id -> voice channel ids
	closed   bool
}

func NewVoiceRelay(session *discordgo.Session, store storage.AudioStore, guildID string, log zerolog.Logger) *VoiceRelay {
	return &VoiceRelay{
		session:  session,
		store:    store,
		guildID:  guildID,
		ffmpeg:   "ffmpeg",
		log:      log.With().Str("component", "voicerelay").Logger(),
		channels: make(map[string]*relayChannel),
		subs:     make(map[string]map[string]bool),
	}
}

// Toggle subscribes a voice channel to a talkgroup, or unsubscribes it
// if already subscribed. Returns true when the channel is now listening.
func (v *VoiceRelay) Toggle(talkgroupID, voiceChannelID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}

	set := v.subs[talkgroupID]
	if set == nil {
		set = make(map[string]bool)
		v.subs[talkgroupID] = set
	}
	if set[voiceChannelID] {
		delete(set, voiceChannelID)
		v.stopIfIdleLocked(voiceChannelID)
		return false
	}
	set[voiceChannelID] = true
	if _, ok := v.channels[voiceChannelID]; !ok {
		rc := &relayChannel{
			queue: make(chan relayJob, relayQueueDepth),
			done:  make(chan struct{}),
		}
		v.channels[voiceChannelID] = rc
		go v.play(voiceChannelID, rc)
	}
	return true
}

// Enqueue queues a finished call for every voice channel listening to
// its talkgroup. A full queue drops its oldest pending call first.
func (v *VoiceRelay) Enqueue(talkgroupID string, callID int64, audioKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for vcID := range v.subs[talkgroupID] {
		rc, ok := v.channels[vcID]
		if !ok {
			continue
		}
		job := relayJob{callID: callID, audioKey: audioKey}
		select {
		case rc.queue <- job:
			continue
		default:
		}
		select {
		case dropped := <-rc.queue:
			v.log.Debug().Int64("call_id", dropped.callID).Msg("relay queue full, dropped oldest")
		default:
		}
		select {
		case rc.queue <- job:
		default:
		}
	}
}

// Close tears down every player and voice connection.
func (v *VoiceRelay) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, rc := range v.channels {
		close(rc.done)
		delete(v.channels, id)
	}
	v.subs = make(map[string]map[string]bool)
}

// stopIfIdleLocked stops a voice channel's player once no talkgroup
// points at it. Caller holds v.mu.
func (v *VoiceRelay) stopIfIdleLocked(voiceChannelID string) {
	for _, set := range v.subs {
		if set[voiceChannelID] {
			return
		}
	}
	if rc, ok := v.channels[voiceChannelID]; ok {
		close(rc.done)
		delete(v.channels, voiceChannelID)
	}
}

// play joins the voice channel and works its queue until stopped.
func (v *VoiceRelay) play(voiceChannelID string, rc *relayChannel) {
	vc, err := v.session.ChannelVoiceJoin(v.guildID, voiceChannelID, false, true)
	if err != nil {
		v.log.Warn().Err(err).Str("voice_channel", voiceChannelID).Msg("voice join failed")
		v.mu.Lock()
		delete(v.channels, voiceChannelID)
		v.mu.Unlock()
		return
	}
	defer vc.Disconnect()

	for {
		select {
		case <-rc.done:
			return
		case job := <-rc.queue:
			if err := v.playCall(vc, rc.done, job); err != nil {
				v.log.Warn().Err(err).Int64("call_id", job.callID).Msg("voice playback failed")
			}
		}
	}
}

// playCall streams one call: store -> ffmpeg (decode to s16le 48k
// stereo) -> Opus frames -> Discord.
func (v *VoiceRelay) playCall(vc *discordgo.VoiceConnection, done chan struct{}, job relayJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	audio, err := v.store.Open(ctx, job.audioKey)
	if err != nil {
		return err
	}
	defer audio.Close()

	cmd := exec.CommandContext(ctx, v.ffmpeg,
		"-i", "pipe:0",
		"-f", "s16le", "-ar", "48000", "-ac", "2",
		"pipe:1")
	cmd.Stdin = audio
	pcm, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	defer cmd.Wait()

	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return err
	}

	if err := vc.Speaking(true); err != nil {
		v.log.Debug().Err(err).Msg("speaking notification failed")
	}
	defer vc.Speaking(false)

	frame := make([]byte, opusFrameBytes)
	for {
		select {
		case <-done:
			cancel()
			return nil
		default:
		}
		if _, err := io.ReadFull(pcm, frame); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		packet, err := enc.Encode(bytesToInt16s(frame), opusFrameSize, opusFrameBytes)
		if err != nil {
			return err
		}
		select {
		case vc.OpusSend <- packet:
		case <-done:
			cancel()
			return nil
		}
	}
}

func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
