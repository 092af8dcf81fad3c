package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"coin-alarm-bot/internal/chart"
	"coin-alarm-bot/internal/market"
)

// Export renders a coin's candle closes as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	coin := market.NormalizeCoin(opts.Coin)
	if coin == "" {
		return errors.New("--coin is required")
	}
	if opts.Limit <= 0 {
		return errors.New("--limit must be greater than zero")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	points, err := a.newProvider().HistoricalSeries(ctx, coin, opts.Interval, opts.Limit)
	if err != nil {
		return fmt.Errorf("fetch %s %s series: %w", coin, opts.Interval, err)
	}
	if len(points) == 0 {
		a.Logger.Info().Str("coin", coin).Msg("no candles returned for export window")
		return nil
	}

	downsampled := chart.Downsample(points, opts.MaxPoints)
	a.Logger.Info().Str("coin", coin).Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(f *os.File) error {
			return chart.WriteCSV(f, coin, downsampled)
		}); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeFile(opts.PNGPath, func(f *os.File) error {
			return chart.RenderPNG(f, coin, market.CurrencyUSD, downsampled)
		}); err != nil {
			return err
		}
	}

	return nil
}

func writeFile(path string, render func(*os.File) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(file); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
