package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/murmur/internal/voicequeue"
	"github.com/MrWong99/murmur/pkg/voice"
)

type sayFlags struct {
	mode   string
	gender string
}

func newSayCmd(g *globalFlags) *cobra.Command {
	f := &sayFlags{}
	cmd := &cobra.Command{
		Use:   "say [flags] TEXT...",
		Short: "Speak text once and wait until it has been played",
		Example: `  murmur say --mode business_mentor --gender female "Let's review your quarter."
  murmur say -m life_coach -g male Take a deep breath`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return say(cmd.Context(), g, f, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&f.mode, "mode", "m", string(voice.ModePersonalFriend), "personality mode")
	cmd.Flags().StringVarP(&f.gender, "gender", "g", string(voice.GenderFemale), "voice gender (male or female)")
	return cmd
}

func say(ctx context.Context, g *globalFlags, f *sayFlags, text string) error {
	gender, err := voice.ParseGender(f.gender)
	if err != nil {
		return err
	}
	cfg, err := g.load()
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		failed error
	)
	rt, err := buildRuntime(cfg, voicequeue.WithOnError(func(_ voicequeue.Item, err error) {
		mu.Lock()
		failed = err
		mu.Unlock()
	}))
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.manager.Close(cctx)
	}()

	id, err := rt.manager.Speak(text, voice.Mode(f.mode), gender)
	if err != nil {
		return err
	}
	if id == "" {
		fmt.Fprintf(os.Stderr, "voice is disabled for mode %q; nothing to say\n", f.mode)
		return nil
	}

	if err := rt.manager.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			rt.manager.Stop()
			return nil
		}
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if failed != nil {
		return fmt.Errorf("%s failure: %w", voicequeue.Kind(failed), failed)
	}
	return nil
}
