package order

import "aaroh-orders/internal/models"

type transition struct {
	from models.OrderStatus
	to   models.OrderStatus
}

// Legal status edges per order family. Nothing outside these tables ever gets
// written, no matter which code path asks.
var edges = map[models.OrderKind][]transition{
	models.KindShop: {
		{models.StatusPending, models.StatusConfirmed},
		{models.StatusConfirmed, models.StatusShipped},
		{models.StatusShipped, models.StatusDelivered},
		{models.StatusPending, models.StatusCancelled},
		{models.StatusConfirmed, models.StatusCancelled},
		{models.StatusPending, models.StatusFailed},
	},
	models.KindCourse: {
		{models.StatusPending, models.StatusConfirmed},
		{models.StatusPending, models.StatusFailed},
	},
	models.KindCustomSong: {
		{models.StatusPending, models.StatusInProgress},
		{models.StatusInProgress, models.StatusReady},
		{models.StatusReady, models.StatusCompleted},
		{models.StatusPending, models.StatusFailed},
		{models.StatusInProgress, models.StatusFailed},
		{models.StatusReady, models.StatusFailed},
	},
}

// CanTransition reports whether moving an order of the given kind from one
// status to another is legal.
func CanTransition(kind models.OrderKind, from, to models.OrderStatus) bool {
	for _, t := range edges[kind] {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// PaidTarget returns the status a verified payment advances the order to from
// its current status. Custom songs have two payable stages: the advance
// (pending -> in_progress) and the unlock (ready -> completed).
func PaidTarget(kind models.OrderKind, from models.OrderStatus) (models.OrderStatus, bool) {
	switch kind {
	case models.KindShop, models.KindCourse:
		if from == models.StatusPending {
			return models.StatusConfirmed, true
		}
	case models.KindCustomSong:
		switch from {
		case models.StatusPending:
			return models.StatusInProgress, true
		case models.StatusReady:
			return models.StatusCompleted, true
		}
	}
	return "", false
}

// TerminalPaid reports whether the order sits in its terminal paid state, the
// point after which a further submission is either an idempotent replay or a
// deliberate repayment.
func TerminalPaid(kind models.OrderKind, status models.OrderStatus) bool {
	switch kind {
	case models.KindShop:
		return status == models.StatusConfirmed || status == models.StatusShipped || status == models.StatusDelivered
	case models.KindCourse:
		return status == models.StatusConfirmed
	case models.KindCustomSong:
		return status == models.StatusCompleted
	}
	return false
}
