package main

import (
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/timzifer/gpioline/config"
	"github.com/timzifer/gpioline/controller"
	"github.com/timzifer/gpioline/internal/logging"
	"github.com/timzifer/gpioline/lineconf"
	"github.com/timzifer/gpioline/telemetry"
	"github.com/timzifer/gpioline/uapi"
)

// The built-in profile ships inside the binary and is resolved through the
// profile overlay registry, so the tool works without any file on disk.
//
//go:embed builtin.cue
var builtinProfile string

const builtinProfilePath = "linecheck-builtin.cue"

func main() {
	profilePath := flag.String("profile", builtinProfilePath, "Path to the line profile; the default names the built-in demonstration profile")
	offsetsArg := flag.String("offsets", "", "Comma-separated request offsets overriding the profile")
	numLines := flag.Uint("num-lines", 64, "Number of lines of the simulated device")
	configCheck := flag.Bool("config-check", false, "Validate and compile the profile, then exit")
	flag.Parse()

	if err := config.RegisterOverlayString(builtinProfilePath, builtinProfile); err != nil {
		log.Fatal().Err(err).Msg("failed to register built-in profile")
	}

	profile, err := config.Load(*profilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load profile")
	}

	offsets := profile.Request.Offsets
	if *offsetsArg != "" {
		offsets, err = parseOffsets(*offsetsArg)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid offsets")
		}
	}

	if *configCheck {
		os.Exit(executeConfigCheck(profile, offsets))
	}

	logger, cleanup, err := logging.Setup(profile.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()

	cfg, err := profile.Apply()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply profile")
	}

	sim := controller.NewSim(uint32(*numLines), telemetry.Noop())
	opts := controller.RequestOptions{
		Consumer:        profile.Request.Consumer,
		EventBufferSize: profile.Request.EventBufferSize,
	}
	request, err := sim.RequestLines(cfg, offsets, opts, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("request rejected")
	}
	defer request.Release()

	printPlan(cfg, offsets)
}

func parseOffsets(arg string) ([]uint32, error) {
	var offsets []uint32
	for _, field := range strings.Split(arg, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		value, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse offset %q: %w", field, err)
		}
		offsets = append(offsets, uint32(value))
	}
	return offsets, nil
}

func executeConfigCheck(profile *config.Profile, offsets []uint32) int {
	cfg, err := profile.Apply()
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile invalid: %v\n", err)
		return 1
	}
	compiled, err := cfg.Compile(offsets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile does not compile: %v\n", err)
		return 1
	}
	fmt.Printf("profile ok: %d lines, %d of %d attribute slots used\n",
		len(offsets), len(compiled.Groups), lineconf.MaxAttrSlots)
	return 0
}

func printPlan(cfg *lineconf.Config, offsets []uint32) {
	compiled, err := cfg.Compile(offsets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compile failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("defaults: flags %#x, debounce %s\n",
		uapi.FlagsForConfig(compiled.Defaults), compiled.Defaults.DebouncePeriod)
	for i, group := range compiled.Groups {
		switch group.Kind {
		case lineconf.AttrFlags:
			fmt.Printf("attr %d: flags %#x for indices %v\n",
				i, uapi.FlagsForConfig(group.Flags), group.Mask.Indices())
		case lineconf.AttrDebounce:
			fmt.Printf("attr %d: debounce %s for indices %v\n",
				i, group.Debounce, group.Mask.Indices())
		case lineconf.AttrOutputValues:
			fmt.Printf("attr %d: output values %#x for indices %v\n",
				i, uint64(group.Values), group.Mask.Indices())
		}
	}
	fmt.Printf("%d of %d attribute slots used\n", len(compiled.Groups), lineconf.MaxAttrSlots)
}
