package models

import "time"

// BBox is an axis-aligned bounding box in page pixel coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the geometric center of the box.
func (b BBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Valid reports whether the box has positive area and non-negative origin.
func (b BBox) Valid() bool {
	return b.X >= 0 && b.Y >= 0 && b.Width > 0 && b.Height > 0
}

// Category groups symbol classes for association and checklist reporting.
type Category string

const (
	CategoryEquipment  Category = "equipment"
	CategoryInstrument Category = "instrument"
	CategoryValve      Category = "valve"
	CategoryPiping     Category = "piping"
)

// VerificationStatus is the human review state of a detected item.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusFlagged  VerificationStatus = "flagged"
)

// TextType classifies what an OCR token represents on the drawing.
type TextType string

const (
	TextEquipmentTag  TextType = "equipment_tag"
	TextInstrumentTag TextType = "instrument_tag"
	TextLineNumber    TextType = "line_number"
	TextValveTag      TextType = "valve_tag"
	TextLabel         TextType = "label"
	TextNote          TextType = "note"
	TextTitleBlock    TextType = "title_block"
	TextUnknown       TextType = "unknown"
)

// Category returns the symbol category a text type labels, if any.
// Only tag-like types participate in association and checklist grouping.
func (t TextType) Category() (Category, bool) {
	switch t {
	case TextEquipmentTag:
		return CategoryEquipment, true
	case TextInstrumentTag:
		return CategoryInstrument, true
	case TextValveTag:
		return CategoryValve, true
	case TextLineNumber:
		return CategoryPiping, true
	default:
		return "", false
	}
}

// SymbolClass identifies one of the fixed detector output classes.
type SymbolClass string

// Detector class catalog. The detection model is trained on exactly these
// classes; anything else coming off the wire is rejected by the normalizer.
const (
	// Equipment
	ClassPumpCentrifugal         SymbolClass = "pump_centrifugal"
	ClassPumpReciprocating       SymbolClass = "pump_reciprocating"
	ClassCompressorCentrifugal   SymbolClass = "compressor_centrifugal"
	ClassCompressorReciprocating SymbolClass = "compressor_reciprocating"
	ClassBlower                  SymbolClass = "blower"
	ClassHeatExchangerShellTube  SymbolClass = "heat_exchanger_shell_tube"
	ClassHeatExchangerPlate      SymbolClass = "heat_exchanger_plate"
	ClassAirCooler               SymbolClass = "air_cooler"
	ClassVesselVertical          SymbolClass = "vessel_vertical"
	ClassVesselHorizontal        SymbolClass = "vessel_horizontal"
	ClassTankStorage             SymbolClass = "tank_storage"
	ClassTankFloatingRoof        SymbolClass = "tank_floating_roof"
	ClassColumnDistillation      SymbolClass = "column_distillation"
	ClassReactor                 SymbolClass = "reactor"
	ClassFurnace                 SymbolClass = "furnace"
	ClassFilterEquipment         SymbolClass = "filter"

	// Instruments
	ClassInstrumentField        SymbolClass = "instrument_field"
	ClassInstrumentPanel        SymbolClass = "instrument_panel"
	ClassInstrumentShared       SymbolClass = "instrument_shared_display"
	ClassTransmitterPressure    SymbolClass = "transmitter_pressure"
	ClassTransmitterTemperature SymbolClass = "transmitter_temperature"
	ClassTransmitterFlow        SymbolClass = "transmitter_flow"
	ClassTransmitterLevel       SymbolClass = "transmitter_level"
	ClassGaugePressure          SymbolClass = "gauge_pressure"
	ClassGaugeTemperature       SymbolClass = "gauge_temperature"
	ClassGaugeLevel             SymbolClass = "gauge_level"
	ClassController             SymbolClass = "controller"
	ClassAnalyzer               SymbolClass = "analyzer"
	ClassFlowElement            SymbolClass = "flow_element"
	ClassSwitchLevel            SymbolClass = "switch_level"

	// Valves
	ClassValveGate      SymbolClass = "valve_gate"
	ClassValveGlobe     SymbolClass = "valve_globe"
	ClassValveBall      SymbolClass = "valve_ball"
	ClassValveButterfly SymbolClass = "valve_butterfly"
	ClassValveCheck     SymbolClass = "valve_check"
	ClassValveNeedle    SymbolClass = "valve_needle"
	ClassValvePlug      SymbolClass = "valve_plug"
	ClassValveDiaphragm SymbolClass = "valve_diaphragm"
	ClassValveRelief    SymbolClass = "valve_relief"
	ClassValveControl   SymbolClass = "valve_control"
	ClassValveThreeWay  SymbolClass = "valve_three_way"
	ClassValveSolenoid  SymbolClass = "valve_solenoid"

	// Piping
	ClassPipeReducer    SymbolClass = "pipe_reducer"
	ClassFlange         SymbolClass = "flange"
	ClassBlindFlange    SymbolClass = "blind_flange"
	ClassSpectacleBlind SymbolClass = "spectacle_blind"
	ClassStrainer       SymbolClass = "strainer"
	ClassSteamTrap      SymbolClass = "steam_trap"
	ClassExpansionJoint SymbolClass = "expansion_joint"
	ClassOrificePlate   SymbolClass = "orifice_plate"
)

// symbolClassCategories maps every detector class to its category.
var symbolClassCategories = map[SymbolClass]Category{
	ClassPumpCentrifugal:         CategoryEquipment,
	ClassPumpReciprocating:       CategoryEquipment,
	ClassCompressorCentrifugal:   CategoryEquipment,
	ClassCompressorReciprocating: CategoryEquipment,
	ClassBlower:                  CategoryEquipment,
	ClassHeatExchangerShellTube:  CategoryEquipment,
	ClassHeatExchangerPlate:      CategoryEquipment,
	ClassAirCooler:               CategoryEquipment,
	ClassVesselVertical:          CategoryEquipment,
	ClassVesselHorizontal:        CategoryEquipment,
	ClassTankStorage:             CategoryEquipment,
	ClassTankFloatingRoof:        CategoryEquipment,
	ClassColumnDistillation:      CategoryEquipment,
	ClassReactor:                 CategoryEquipment,
	ClassFurnace:                 CategoryEquipment,
	ClassFilterEquipment:         CategoryEquipment,

	ClassInstrumentField:        CategoryInstrument,
	ClassInstrumentPanel:        CategoryInstrument,
	ClassInstrumentShared:       CategoryInstrument,
	ClassTransmitterPressure:    CategoryInstrument,
	ClassTransmitterTemperature: CategoryInstrument,
	ClassTransmitterFlow:        CategoryInstrument,
	ClassTransmitterLevel:       CategoryInstrument,
	ClassGaugePressure:          CategoryInstrument,
	ClassGaugeTemperature:       CategoryInstrument,
	ClassGaugeLevel:             CategoryInstrument,
	ClassController:             CategoryInstrument,
	ClassAnalyzer:               CategoryInstrument,
	ClassFlowElement:            CategoryInstrument,
	ClassSwitchLevel:            CategoryInstrument,

	ClassValveGate:      CategoryValve,
	ClassValveGlobe:     CategoryValve,
	ClassValveBall:      CategoryValve,
	ClassValveButterfly: CategoryValve,
	ClassValveCheck:     CategoryValve,
	ClassValveNeedle:    CategoryValve,
	ClassValvePlug:      CategoryValve,
	ClassValveDiaphragm: CategoryValve,
	ClassValveRelief:    CategoryValve,
	ClassValveControl:   CategoryValve,
	ClassValveThreeWay:  CategoryValve,
	ClassValveSolenoid:  CategoryValve,

	ClassPipeReducer:    CategoryPiping,
	ClassFlange:         CategoryPiping,
	ClassBlindFlange:    CategoryPiping,
	ClassSpectacleBlind: CategoryPiping,
	ClassStrainer:       CategoryPiping,
	ClassSteamTrap:      CategoryPiping,
	ClassExpansionJoint: CategoryPiping,
	ClassOrificePlate:   CategoryPiping,
}

// Category returns the category grouping for the class, and whether the
// class is part of the detector catalog at all.
func (s SymbolClass) Category() (Category, bool) {
	c, ok := symbolClassCategories[s]
	return c, ok
}

// Valid reports whether the class belongs to the detector catalog.
func (s SymbolClass) Valid() bool {
	_, ok := symbolClassCategories[s]
	return ok
}

// DetectedSymbol is one symbol detection on a drawing page, normalized
// from raw detector output and mutated only through edit actions.
type DetectedSymbol struct {
	ID                 string             `json:"id" gorm:"primaryKey"`
	DrawingID          string             `json:"drawing_id" gorm:"index"`
	SymbolClass        SymbolClass        `json:"symbol_class"`
	BBox               BBox               `json:"bbox" gorm:"embedded;embeddedPrefix:bbox_"`
	Confidence         float64            `json:"confidence"`
	TagNumber          *string            `json:"tag_number,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ExtractedText is one OCR token on a drawing page. LinkedSymbolID is a
// weak reference set by the association engine; it is lookup-only, and
// a reference to a deleted symbol reads as unlinked.
type ExtractedText struct {
	ID                 string             `json:"id" gorm:"primaryKey"`
	DrawingID          string             `json:"drawing_id" gorm:"index"`
	TextContent        string             `json:"text_content"`
	TextType           TextType           `json:"text_type"`
	BBox               BBox               `json:"bbox" gorm:"embedded;embeddedPrefix:bbox_"`
	Rotation           int                `json:"rotation"`
	Confidence         float64            `json:"confidence"`
	LinkedSymbolID     *string            `json:"linked_symbol_id,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// LineEntity is a process or utility line derived from a line-number
// token. Lines are verified like symbols and reported under their own
// checklist category.
type LineEntity struct {
	ID                 string             `json:"id" gorm:"primaryKey"`
	DrawingID          string             `json:"drawing_id" gorm:"index"`
	LineNumber         string             `json:"line_number"`
	BBox               BBox               `json:"bbox" gorm:"embedded;embeddedPrefix:bbox_"`
	Confidence         float64            `json:"confidence"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}
