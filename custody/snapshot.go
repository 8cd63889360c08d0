/*
snapshot.go - Rule types and the immutable configuration snapshot

PURPOSE:
  A Snapshot is everything the engine needs to know about one child's
  arrangement: the classic rhythm, the vacation rule and the handover times.
  It is validated once in NewSnapshot; Resolve never re-validates.

RULE MODEL:
  RhythmRule is a sealed interface with one case per rhythm type. Each case
  carries only the fields it uses:

    WeekParity{Parity, Span}          weekly_parity (ISO week number parity)
    BiweeklyCycle{Anchor, Parity, Span}  biweekly_cycle (14-day cycle)
    TwoTwoThree{Anchor}               two_two_three (7-day cycle)
    TwoTwoFiveFive{Anchor}            two_two_five_five (14-day cycle)
    Custom{}                          custom (overrides only)

  VacationRule is a plain struct: every field applies to every entry.

LIFECYCLE:
  Built from stored settings (factory.ParseSettings), reused for every call
  until the settings change, then replaced as a whole. Fields are unexported
  so a snapshot cannot be mutated in place.

SEE ALSO:
  - rhythm.go: Period generation per rhythm case
  - vacation.go: Allocation per vacation rule
  - factory/settings.go: JSON settings to Snapshot
*/
package custody

import (
	"fmt"
	"time"

	"github.com/samber/mo"
)

// =============================================================================
// ENUMS
// =============================================================================

// Parity is the odd/even alternation key.
type Parity string

const (
	ParityOdd  Parity = "odd"
	ParityEven Parity = "even"
)

// ParityOf classifies n (a year or ISO week number).
func ParityOf(n int) Parity {
	if n&1 == 0 {
		return ParityEven
	}
	return ParityOdd
}

func (p Parity) Valid() bool { return p == ParityOdd || p == ParityEven }

// Span selects the full-week or the weekend shape of a parity rhythm.
type Span string

const (
	SpanWeek    Span = "week"
	SpanWeekend Span = "weekend"
)

func (s Span) Valid() bool { return s == SpanWeek || s == SpanWeekend }

// RhythmType is the persisted name of a rhythm case.
type RhythmType string

const (
	RhythmWeeklyParity   RhythmType = "weekly_parity"
	RhythmBiweeklyCycle  RhythmType = "biweekly_cycle"
	RhythmTwoTwoThree    RhythmType = "two_two_three"
	RhythmTwoTwoFiveFive RhythmType = "two_two_five_five"
	RhythmCustom         RhythmType = "custom"
)

// SplitMode decides which half of a non-summer vacation the odd parity owns.
type SplitMode string

const (
	SplitOddFirst  SplitMode = "odd_first"  // Odd years: first half; even years: second half
	SplitOddSecond SplitMode = "odd_second" // Odd years: second half; even years: first half
)

func (m SplitMode) Valid() bool { return m == SplitOddFirst || m == SplitOddSecond }

// SummerRule is how the summer vacation is shared.
type SummerRule string

const (
	SummerAuto             SummerRule = "auto"
	SummerJulyFirstHalf    SummerRule = "july_first_half"
	SummerJulySecondHalf   SummerRule = "july_second_half"
	SummerAugustFirstHalf  SummerRule = "august_first_half"
	SummerAugustSecondHalf SummerRule = "august_second_half"
)

func (r SummerRule) Valid() bool {
	switch r {
	case SummerAuto, SummerJulyFirstHalf, SummerJulySecondHalf, SummerAugustFirstHalf, SummerAugustSecondHalf:
		return true
	}
	return false
}

// SchoolLevel changes where a vacation effectively starts.
type SchoolLevel string

const (
	LevelPrimary SchoolLevel = "primary" // Pick-up Friday after school
	LevelMiddle  SchoolLevel = "middle"  // Pick-up Saturday
	LevelHigh    SchoolLevel = "high"    // Pick-up Saturday
)

func (l SchoolLevel) Valid() bool { return l == LevelPrimary || l == LevelMiddle || l == LevelHigh }

// =============================================================================
// RHYTHM RULES
// =============================================================================

// RhythmRule is one of WeekParity, BiweeklyCycle, TwoTwoThree,
// TwoTwoFiveFive or Custom.
type RhythmRule interface {
	Type() RhythmType
	Label() string

	validate() error
	// periods yields unclipped periods whose cycle starts in [from, to].
	periods(h Handover, from, to Date) []Period
}

// WeekParity follows ISO week number parity.
type WeekParity struct {
	Parity Parity
	Span   Span
}

// BiweeklyCycle is a 14-day cycle whose day 0 falls on Anchor.
type BiweeklyCycle struct {
	Anchor time.Weekday
	Parity Parity
	Span   Span
}

// TwoTwoThree is the 7-day 2-2-3 cycle starting on Anchor.
type TwoTwoThree struct {
	Anchor time.Weekday
}

// TwoTwoFiveFive is the 14-day 2-2-5-5 cycle starting on Anchor.
type TwoTwoFiveFive struct {
	Anchor time.Weekday
}

// Custom generates nothing; all periods come from overrides.
type Custom struct{}

func (WeekParity) Type() RhythmType     { return RhythmWeeklyParity }
func (BiweeklyCycle) Type() RhythmType  { return RhythmBiweeklyCycle }
func (TwoTwoThree) Type() RhythmType    { return RhythmTwoTwoThree }
func (TwoTwoFiveFive) Type() RhythmType { return RhythmTwoTwoFiveFive }
func (Custom) Type() RhythmType         { return RhythmCustom }

func (r WeekParity) Label() string {
	if r.Span == SpanWeekend {
		return "Week-ends alternés"
	}
	return "Semaines alternées"
}

func (r BiweeklyCycle) Label() string {
	if r.Span == SpanWeekend {
		return "Week-ends alternés (cycle 14 jours)"
	}
	return "Semaines alternées (1/1)"
}

func (TwoTwoThree) Label() string    { return "2-2-3" }
func (TwoTwoFiveFive) Label() string { return "2-2-5-5" }
func (Custom) Label() string         { return "Personnalisé" }

func (r WeekParity) validate() error {
	if !r.Parity.Valid() {
		return rhythmErr("parity", "must be odd or even, got %q", r.Parity)
	}
	if !r.Span.Valid() {
		return rhythmErr("span", "must be week or weekend, got %q", r.Span)
	}
	return nil
}

func (r BiweeklyCycle) validate() error {
	if err := validAnchor(r.Anchor); err != nil {
		return err
	}
	if !r.Parity.Valid() {
		return rhythmErr("parity", "must be odd or even, got %q", r.Parity)
	}
	if !r.Span.Valid() {
		return rhythmErr("span", "must be week or weekend, got %q", r.Span)
	}
	return nil
}

func (r TwoTwoThree) validate() error    { return validAnchor(r.Anchor) }
func (r TwoTwoFiveFive) validate() error { return validAnchor(r.Anchor) }
func (Custom) validate() error           { return nil }

func validAnchor(wd time.Weekday) error {
	if wd < time.Sunday || wd > time.Saturday {
		return rhythmErr("cycle_anchor_day", "not a weekday: %d", int(wd))
	}
	return nil
}

func rhythmErr(field, format string, args ...any) error {
	return &InvalidRuleError{Rule: "rhythm", Field: field, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// VACATION RULE
// =============================================================================

// VacationRule governs which share of each vacation entry belongs to this
// configuration.
type VacationRule struct {
	Zone   string
	Parity Parity
	Split  SplitMode
	Summer mo.Option[SummerRule] // None: summer is split in halves like any vacation
	Level  SchoolLevel
}

func (r VacationRule) validate() error {
	if !r.Parity.Valid() {
		return vacationErr("parity", "must be odd or even, got %q", r.Parity)
	}
	if !r.Split.Valid() {
		return vacationErr("split_mode", "must be odd_first or odd_second, got %q", r.Split)
	}
	if s, ok := r.Summer.Get(); ok && !s.Valid() {
		return vacationErr("summer_rule", "unknown rule %q", s)
	}
	if !r.Level.Valid() {
		return vacationErr("school_level", "must be primary, middle or high, got %q", r.Level)
	}
	return nil
}

func vacationErr(field, format string, args ...any) error {
	return &InvalidRuleError{Rule: "vacation", Field: field, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the immutable, validated configuration of one child.
type Snapshot struct {
	rhythm   RhythmRule
	vacation VacationRule
	handover Handover
}

// NewSnapshot validates every rule and returns the snapshot. An empty Split
// defaults to odd_first.
func NewSnapshot(rhythm RhythmRule, vacation VacationRule, handover Handover) (Snapshot, error) {
	if rhythm == nil {
		return Snapshot{}, rhythmErr("type", "missing rhythm rule")
	}
	if err := rhythm.validate(); err != nil {
		return Snapshot{}, err
	}
	if vacation.Split == "" {
		vacation.Split = SplitOddFirst
	}
	if err := vacation.validate(); err != nil {
		return Snapshot{}, err
	}
	if !handover.Arrival.Valid() {
		return Snapshot{}, &InvalidRuleError{Rule: "handover", Field: "arrival_time", Reason: "out of range " + handover.Arrival.String()}
	}
	if !handover.Departure.Valid() {
		return Snapshot{}, &InvalidRuleError{Rule: "handover", Field: "departure_time", Reason: "out of range " + handover.Departure.String()}
	}
	if handover.Location == nil {
		handover.Location = time.UTC
	}
	return Snapshot{rhythm: rhythm, vacation: vacation, handover: handover}, nil
}

func (s Snapshot) Rhythm() RhythmRule     { return s.rhythm }
func (s Snapshot) Vacation() VacationRule { return s.vacation }
func (s Snapshot) Handover() Handover     { return s.handover }
func (s Snapshot) Location() *time.Location {
	return s.handover.loc()
}

// IsZero reports a snapshot that did not come from NewSnapshot.
func (s Snapshot) IsZero() bool { return s.rhythm == nil }
