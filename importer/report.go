package importer

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wsi/common"
	"wsi/reconcile"
)

type FailureInfo struct {
	Entry string `json:"entry"`
	Error string `json:"error"`
}

// Report summarizes single import attempt.
type Report struct {
	Archive    string             `json:"archive,omitempty"`
	Stage      common.ImportStage `json:"stage"`
	Referenced int                `json:"referenced"`
	Reconciled int                `json:"reconciled"`
	Added      int                `json:"added"`
	Duplicates int                `json:"duplicates"`
	Ignored    int                `json:"ignored"`
	Posters    int                `json:"posters"`
	Failures   []FailureInfo      `json:"failures,omitempty"`
	Warning    string             `json:"warning,omitempty"`
	Error      string             `json:"error,omitempty"`
	Elapsed    time.Duration      `json:"elapsed"`
}

func (r *Report) addReconciled(res *reconcile.Result) {
	r.Reconciled = len(res.Items)
	r.Duplicates += res.Duplicates
	r.Ignored = res.Ignored
	r.Posters = res.Posters
	for _, f := range res.Failures {
		r.Failures = append(r.Failures, FailureInfo{Entry: f.Entry, Error: f.Err.Error()})
	}
}

// Failed returns number of entries which could not be imported.
func (r *Report) Failed() int {
	return len(r.Failures)
}

func (r *Report) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("archive", r.Archive)
	enc.AddString("stage", r.Stage.String())
	enc.AddInt("referenced", r.Referenced)
	enc.AddInt("reconciled", r.Reconciled)
	enc.AddInt("added", r.Added)
	enc.AddInt("duplicates", r.Duplicates)
	enc.AddInt("ignored", r.Ignored)
	enc.AddInt("failed", r.Failed())
	enc.AddDuration("elapsed", r.Elapsed)
	return nil
}

func (r *Report) json() []byte {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return []byte(err.Error())
	}
	return data
}

var _ zapcore.ObjectMarshaler = (*Report)(nil)

func reportField(r *Report) zap.Field {
	return zap.Object("report", r)
}
