//go:build portaudio

package main

import (
	"context"

	"github.com/MrWong99/stresslens/internal/config"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/audio/portaudio"
)

func init() {
	extraRegistrations = append(extraRegistrations, func(reg *config.Registry) {
		reg.RegisterSource("portaudio", func(_ context.Context, entry config.ProviderEntry, env config.Env) (audio.Source, error) {
			return portaudio.New(env.SampleRate, config.OptInt(entry.Options, "frames_per_buffer", env.FrameSize))
		})
	})
}
