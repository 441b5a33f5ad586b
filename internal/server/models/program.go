// Package models defines the ledger's data models persisted in the database.
package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/pointledger/internal/common"
)

// Program identifies a loyalty program whose points a wallet holds.
type Program string

const (
	ProgramQantas   Program = "QANTAS"
	ProgramVelocity Program = "VELOCITY"
	ProgramAmex     Program = "AMEX"
	ProgramFlybuys  Program = "FLYBUYS"
	ProgramGYG      Program = "GYG"
	ProgramHilton   Program = "HILTON"
	ProgramMarriott Program = "MARRIOTT"
	ProgramDelta    Program = "DELTA"
	ProgramAirbnb   Program = "AIRBNB"
	// ProgramXPoints is the reserve currency every other program is quoted against.
	ProgramXPoints Program = "XPOINTS"
)

// ReserveProgram is the settlement currency used for triangulation.
const ReserveProgram = ProgramXPoints

var supportedPrograms = []Program{
	ProgramQantas,
	ProgramVelocity,
	ProgramAmex,
	ProgramFlybuys,
	ProgramGYG,
	ProgramHilton,
	ProgramMarriott,
	ProgramDelta,
	ProgramAirbnb,
	ProgramXPoints,
}

// SupportedPrograms returns a copy of the closed program list.
func SupportedPrograms() []Program {
	out := make([]Program, len(supportedPrograms))
	copy(out, supportedPrograms)
	return out
}

// IsReserve reports whether p is the reserve currency.
func (p Program) IsReserve() bool { return p == ReserveProgram }

// Valid reports whether p belongs to the supported set.
func (p Program) Valid() bool {
	for _, s := range supportedPrograms {
		if p == s {
			return true
		}
	}
	return false
}

func (p Program) String() string { return string(p) }

// ParseProgram normalises s and checks it against the supported set.
func ParseProgram(s string) (Program, error) {
	p := Program(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%q: %w", s, common.ErrUnsupportedProgram)
	}
	return p, nil
}
