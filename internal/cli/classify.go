package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Brownie44l1/lesion-api/internal/classifier"
	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/cobra"
)

func NewClassifyCommand(rt *app) *cobra.Command {
	var (
		asJSON     bool
		noProgress bool
		top        int
	)

	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify one or more lesion photos",
		Long: `Load the model, showing a progress bar while it loads, then classify each
image in turn. A failed load is reported once and every image is answered
with "model not ready".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := classifier.New(
				classifier.WithAssetsDir(rt.cfg.AssetsDir),
				classifier.WithIllustrationCategory(rt.cfg.IllustrationCategory),
				classifier.WithLogger(rt.logger),
			)
			defer c.Close()

			events, err := newLoader(rt).Start(cmd.Context(), rt.cfg.ModelPath())
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			var onProgress func(int)
			if !noProgress {
				bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
				onProgress = func(p int) {
					fmt.Fprintf(errOut, "\rLoading model %s", bar.ViewAs(float64(p)/100))
				}
			}
			pumpErr := c.Pump(cmd.Context(), events, onProgress)
			if onProgress != nil {
				fmt.Fprintln(errOut)
			}
			if pumpErr != nil {
				return pumpErr
			}
			if status := c.Status(); !status.Ready {
				fmt.Fprintf(errOut, "Model load failed: %s\n", status.LoadError)
			}

			return classifyAll(cmd.OutOrStdout(), c, args, asJSON, top)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per image")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide the load progress bar")
	cmd.Flags().IntVar(&top, "top", 5, "Number of ranked classes to print")
	return cmd
}

// classifyAll runs every path and keeps going after failures; the returned
// error reports how many images could not be classified.
func classifyAll(w io.Writer, c *classifier.Classifier, paths []string, asJSON bool, top int) error {
	failed := 0
	enc := json.NewEncoder(w)

	for _, path := range paths {
		result, err := c.Classify(path)
		if err != nil {
			failed++
			if asJSON {
				enc.Encode(map[string]string{"image": path, "error": err.Error()})
				continue
			}
			renderError(w, path, err)
			continue
		}

		top1 := result.Top()
		resp := model.PredictionResponse{
			Class:        top1.Label,
			Confidence:   top1.Percent(),
			Tier:         model.TierFor(top1.Percent()).String(),
			Predictions:  result.Predictions,
			Illustration: c.Illustration(top1.Label),
		}
		if asJSON {
			enc.Encode(struct {
				Image string `json:"image"`
				model.PredictionResponse
			}{path, resp})
			continue
		}
		renderResult(w, path, resp, top)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images not classified", failed, len(paths))
	}
	return nil
}

func statusText(err error) string {
	var cerr *classifier.ClassificationError
	switch {
	case errors.Is(err, classifier.ErrNotReady):
		return "Model not loaded, cannot classify"
	case errors.As(err, &cerr):
		return "Classification failed: " + cerr.Err.Error()
	default:
		return err.Error()
	}
}
