package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognicore/celldiag/pkg/celldiag"
	"github.com/cognicore/celldiag/pkg/celldiag/reasoning"
)

var (
	askFile       string
	askText       string
	askIntent     string
	askEntities   []string
	askContext    map[string]string
	askClassifier float64
	askTraceID    string
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer one classified question",
	Long: `Answer one question that has already been classified and had its entities
extracted. The question comes either from a JSON file (--file, "-" for stdin)
or from flags.

Example:
  celldiag ask --text "Fz reads -700 N, why?" --intent diagnosis \
    --entity Fz:MeasurementAxis=-700 --classifier 0.9
  celldiag ask --file question.json`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askFile, "file", "", "JSON request: {trace_id, query, classifier_confidence}")
	askCmd.Flags().StringVar(&askText, "text", "", "Question text")
	askCmd.Flags().StringVar(&askIntent, "intent", "", "Classified intent")
	askCmd.Flags().StringArrayVar(&askEntities, "entity", nil, "Entity as ID:Type[=value][@confidence], repeatable")
	askCmd.Flags().StringToStringVar(&askContext, "context", nil, "Context facts key=value")
	askCmd.Flags().Float64Var(&askClassifier, "classifier", 0.8, "Classifier confidence")
	askCmd.Flags().StringVar(&askTraceID, "trace-id", "", "Trace id to echo (default: generated)")
	rootCmd.AddCommand(askCmd)
}

type askInput struct {
	TraceID              string          `json:"trace_id"`
	Query                reasoning.Query `json:"query"`
	ClassifierConfidence float64         `json:"classifier_confidence"`
}

func buildRequest() (celldiag.Request, error) {
	if askFile != "" {
		var in askInput
		if err := readJSON(askFile, &in); err != nil {
			return celldiag.Request{}, err
		}
		return celldiag.Request{TraceID: in.TraceID, Query: in.Query, ClassifierConfidence: in.ClassifierConfidence}, nil
	}
	if askText == "" {
		return celldiag.Request{}, fmt.Errorf("either --file or --text is required")
	}
	q := reasoning.Query{
		Text:    askText,
		Intent:  reasoning.Intent(askIntent),
		Context: parseFacts(askContext),
	}
	for _, spec := range askEntities {
		e, err := parseEntity(spec)
		if err != nil {
			return celldiag.Request{}, err
		}
		q.Entities = append(q.Entities, e)
	}
	return celldiag.Request{TraceID: askTraceID, Query: q, ClassifierConfidence: askClassifier}, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, _, _, cleanup, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	return printJSON(cmd.OutOrStdout(), app.Ask(ctx, req))
}
