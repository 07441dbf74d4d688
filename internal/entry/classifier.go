package entry

import (
	"strings"

	"github.com/tinytelemetry/cwrelay/internal/model"
)

// Classifier assigns delivered batches an EntryType based on the source log
// group name and, for Lambda groups, message content.
type Classifier struct {
	lambdaPrefix string
	vpcPrefix    string
}

// NewClassifier creates a classifier with the given log group prefixes.
// Empty prefixes fall back to the defaults.
func NewClassifier(lambdaPrefix, vpcPrefix string) *Classifier {
	if lambdaPrefix == "" {
		lambdaPrefix = DefaultLambdaLogGroupPrefix
	}
	if vpcPrefix == "" {
		vpcPrefix = DefaultVPCLogGroupPrefix
	}
	return &Classifier{lambdaPrefix: lambdaPrefix, vpcPrefix: vpcPrefix}
}

// LambdaPrefix returns the configured Lambda log group prefix.
func (c *Classifier) LambdaPrefix() string { return c.lambdaPrefix }

// Classify returns the EntryType of the batch. The VPC prefix check runs
// first and wins without content inspection; Lambda classification also
// requires at least one significant line.
func (c *Classifier) Classify(batch *model.LogBatch) model.EntryType {
	if strings.HasPrefix(batch.LogGroup, c.vpcPrefix) {
		return model.EntryTypeVPC
	}
	if strings.HasPrefix(batch.LogGroup, c.lambdaPrefix) {
		for _, ev := range batch.Events {
			if IsSignificantLambdaMessage(ev.Message) {
				return model.EntryTypeLambda
			}
		}
	}
	return model.EntryTypeOther
}

// FilterSignificantLines returns a copy of the batch keeping only REPORT
// lines and significant Lambda messages, preserving relative order. The
// Lambda classification precondition guarantees a non-empty result.
func (c *Classifier) FilterSignificantLines(batch *model.LogBatch) *model.LogBatch {
	kept := make([]model.LogLine, 0, len(batch.Events))
	for _, ev := range batch.Events {
		if reportPattern.MatchString(ev.Message) || IsSignificantLambdaMessage(ev.Message) {
			kept = append(kept, ev)
		}
	}
	return batch.WithEvents(kept)
}
