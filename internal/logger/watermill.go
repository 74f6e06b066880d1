package logger

import (
	"github.com/ThreeDotsLabs/watermill"
)

// WatermillAdapter routes watermill's internal logs through zap
type WatermillAdapter struct {
	log    *Logger
	fields watermill.LogFields
}

// NewWatermillAdapter returns a watermill.LoggerAdapter backed by l
func NewWatermillAdapter(l *Logger) watermill.LoggerAdapter {
	return &WatermillAdapter{log: l}
}

// WatermillAdapter returns l as a watermill.LoggerAdapter
func (l *Logger) WatermillAdapter() watermill.LoggerAdapter {
	return NewWatermillAdapter(l)
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Errorw(msg, append(a.pairs(fields), "error", err)...)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Infow(msg, a.pairs(fields)...)
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debugw(msg, a.pairs(fields)...)
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debugw(msg, a.pairs(fields)...)
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{log: a.log, fields: a.fields.Add(fields)}
}

func (a *WatermillAdapter) pairs(fields watermill.LogFields) []interface{} {
	all := a.fields.Add(fields)
	pairs := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		pairs = append(pairs, k, v)
	}
	return pairs
}
