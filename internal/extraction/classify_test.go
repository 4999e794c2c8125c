package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pidreview/pkg/models"
)

func TestClassifyText(t *testing.T) {
	tests := []struct {
		text string
		want models.TextType
	}{
		// equipment item numbers
		{"P-101", models.TextEquipmentTag},
		{"E-204B", models.TextEquipmentTag},
		{"TK-12", models.TextEquipmentTag},
		{"V-1", models.TextEquipmentTag},

		// instrument functional tags
		{"FIC-1022", models.TextInstrumentTag},
		{"PT-205A", models.TextInstrumentTag},
		{"LIC-30", models.TextInstrumentTag},

		// line numbers
		{`6"-PG-1501-CS1`, models.TextLineNumber},
		{"2-STM-0071-A1A", models.TextLineNumber},

		// valve tags: trailing V in the prefix
		{"XV-999", models.TextValveTag},
		{"PSV-120A", models.TextValveTag},
		{"HV-12", models.TextValveTag},

		// free text
		{"NOTES: SEE DETAIL A", models.TextNote},
		{"DRAWING NO. 123-45", models.TextTitleBlock},
		{"COOLING WATER SUPPLY", models.TextLabel},
		{"abc123", models.TextUnknown},
		{"", models.TextUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyText(tt.text))
		})
	}
}

func TestClassifyTextCaseInsensitive(t *testing.T) {
	assert.Equal(t, models.TextEquipmentTag, ClassifyText("p-101"))
	assert.Equal(t, models.TextInstrumentTag, ClassifyText("fic-1022"))
}

func TestClassifyTextPriorityOrder(t *testing.T) {
	// P-101 matches the equipment rule before the generic instrument
	// rule ever sees it.
	assert.Equal(t, models.TextEquipmentTag, ClassifyText("P-101"))
}
