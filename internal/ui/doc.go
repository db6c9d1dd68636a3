// Package ui styles command line output with lipgloss.
//
// [Styles] is the shared [Palette]; commands render titles, status lines and
// aligned label/value rows through it so terminal output stays consistent.
package ui
