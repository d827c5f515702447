package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/vansante/go-ffprobe.v2"

	"github.com/zhuguadundan/videowhisper/errors"
)

func TestParseProbeOutput(t *testing.T) {
	info, err := parseProbeOutput(&ffprobe.ProbeData{
		Format: &ffprobe.Format{
			DurationSeconds: 754.3,
			FormatName:      "mp3",
			Size:            "12345678",
		},
		Streams: []*ffprobe.Stream{
			{CodecType: "audio"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 754.3, info.DurationSeconds)
	require.Equal(t, "mp3", info.FormatName)
	require.True(t, info.HasAudio)
	require.False(t, info.HasVideo)
	require.Equal(t, int64(12345678), info.SizeBytes)
}

func TestParseProbeOutputVideoWithAudio(t *testing.T) {
	info, err := parseProbeOutput(&ffprobe.ProbeData{
		Format: &ffprobe.Format{DurationSeconds: 61, FormatName: "mov,mp4,m4a,3gp,3g2,mj2"},
		Streams: []*ffprobe.Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
		},
	})
	require.NoError(t, err)
	require.True(t, info.HasVideo)
	require.True(t, info.HasAudio)
}

func TestParseProbeOutputErrors(t *testing.T) {
	tests := []struct {
		name string
		data *ffprobe.ProbeData
	}{
		{"nil data", nil},
		{"missing format", &ffprobe.ProbeData{}},
		{
			"zero duration",
			&ffprobe.ProbeData{
				Format:  &ffprobe.Format{DurationSeconds: 0},
				Streams: []*ffprobe.Stream{{CodecType: "audio"}},
			},
		},
		{
			"no audio stream",
			&ffprobe.ProbeData{
				Format:  &ffprobe.Format{DurationSeconds: 10},
				Streams: []*ffprobe.Stream{{CodecType: "video"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProbeOutput(tt.data)
			require.Error(t, err)
			require.Equal(t, errors.KindProbeFailed, errors.Kind(err))
		})
	}
}
