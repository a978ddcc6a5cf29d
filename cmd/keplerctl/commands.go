package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/propagation"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/sim"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	sceneFile string
	jsonOut   bool
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "keplerctl",
		Short: "Evaluate Keplerian orbits offline",
		Long: `keplerctl propagates the bodies of a scene with the same solver the
server animates them with. Times are in scene units (days for the built-in
solar system) and are multiplied by --speed before propagation.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.sceneFile, "scene", "", "scene file (YAML, TOML or JSON); built-in solar system when empty")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(
		newBodiesCmd(opts),
		newPositionCmd(opts),
		newEphemerisCmd(opts),
	)
	return root
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *options) scene() (*scene.Scene, error) {
	if o.sceneFile == "" {
		return scene.Default(), nil
	}
	return scene.Load(o.sceneFile)
}

func newBodiesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bodies",
		Short: "List the bodies of the scene and their orbital elements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := opts.scene()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, sc)
			}

			fmt.Fprintf(out, "scene %s, star %s\n", sc.Name, sc.Star.Name)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tA\tE\tM0 (deg)\tPERIOD\tPERIAPSIS\tAPOAPSIS")
			for _, b := range sc.Bodies {
				el := b.Elements
				fmt.Fprintf(tw, "%s\t%.3f\t%.4f\t%.2f\t%.3f\t%.3f\t%.3f\n",
					b.Name, el.SemiMajorAxis, el.Eccentricity,
					el.MeanAnomalyAtEpoch*180/math.Pi, el.Period,
					el.SemiMajorAxis*(1-el.Eccentricity), el.SemiMajorAxis*(1+el.Eccentricity))
			}
			return tw.Flush()
		},
	}
}

type positionOutput struct {
	Body        string      `json:"body"`
	Time        float64     `json:"t"`
	Speed       float64     `json:"speed"`
	Date        string      `json:"date"`
	Position    orbit.Point `json:"position"`
	Radius      float64     `json:"radius"`
	TrueAnomaly float64     `json:"true_anomaly"`
}

func newPositionCmd(opts *options) *cobra.Command {
	var t, speed float64

	cmd := &cobra.Command{
		Use:   "position <body>",
		Short: "Print a body's position at a given time",
		Example: `  keplerctl position Earth --t 91.25
  keplerctl position Mars --t 10 --speed 2 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := opts.scene()
			if err != nil {
				return err
			}
			b, err := sc.Body(args[0])
			if err != nil {
				return err
			}
			if math.IsNaN(t) || math.IsInf(t, 0) || !(speed > 0) || math.IsInf(speed, 0) {
				return fmt.Errorf("--t must be finite and --speed positive")
			}

			pos, nu := orbit.Compute(b.Elements, t, speed)
			res := positionOutput{
				Body:        b.Name,
				Time:        t,
				Speed:       speed,
				Date:        sim.SimDate(sc, t, speed).Format("2006-01-02 15:04:05 MST"),
				Position:    pos,
				Radius:      pos.Norm(),
				TrueAnomaly: nu,
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "%s at t=%g (x%g, %s): x=%.4f y=%.4f r=%.4f nu=%.2f deg\n",
				res.Body, res.Time, res.Speed, res.Date,
				pos.X, pos.Y, res.Radius, nu*180/math.Pi)
			return nil
		},
	}
	cmd.Flags().Float64Var(&t, "t", 0, "time in scene units")
	cmd.Flags().Float64Var(&speed, "speed", 1, "time multiplier")
	return cmd
}

func newEphemerisCmd(opts *options) *cobra.Command {
	req := propagation.Request{}
	var workers int

	cmd := &cobra.Command{
		Use:   "ephemeris <body>...",
		Short: "Tabulate positions over an evenly spaced time grid",
		Example: `  keplerctl ephemeris Earth --count 12 --step 30.4
  keplerctl ephemeris Venus Earth Mars --count 100 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := opts.scene()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd)
			p := propagation.NewPropagator(sc, propagation.Config{Workers: workers}, logger)

			req.Bodies = args
			tables, err := p.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, tables)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "BODY\tT\tX\tY\tR\tNU (deg)")
			for _, table := range tables {
				for _, s := range table.Samples {
					fmt.Fprintf(tw, "%s\t%g\t%.4f\t%.4f\t%.4f\t%.2f\n",
						table.Body, s.Time, s.Position.X, s.Position.Y, s.Radius, s.TrueAnomaly*180/math.Pi)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Float64Var(&req.Start, "t", 0, "first sample time in scene units")
	cmd.Flags().Float64Var(&req.Step, "step", 1, "spacing between samples")
	cmd.Flags().IntVar(&req.Count, "count", 100, "number of samples per body")
	cmd.Flags().Float64Var(&req.Speed, "speed", 1, "time multiplier")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (0 = one per CPU)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
