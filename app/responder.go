package app

import (
	"github.com/m3rciful/paybot/core/telegram/helpers"
	"github.com/m3rciful/paybot/core/telegram/keyboard"
	"github.com/m3rciful/paybot/flow"

	tele "gopkg.in/telebot.v4"
)

// teleResponder delivers engine output through telebot. Send posts a new
// message; Edit rewrites the message carrying the pressed button, falling
// back to a fresh message for text-triggered replies.
type teleResponder struct {
	c tele.Context
}

func newResponder(c tele.Context) teleResponder {
	return teleResponder{c: c}
}

func (r teleResponder) Send(text string, kb [][]flow.Button) error {
	return helpers.SendButtons(r.c, text, markupFor(kb))
}

func (r teleResponder) Edit(text string, kb [][]flow.Button) error {
	return helpers.EditOrSendText(r.c, text, markupFor(kb))
}

func markupFor(kb [][]flow.Button) *tele.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]keyboard.InlineBtn, len(kb))
	for i, r := range kb {
		row := make([]keyboard.InlineBtn, len(r))
		for j, b := range r {
			row[j] = keyboard.InlineBtn{Text: b.Label, Unique: b.Action, Data: b.Data}
		}
		rows[i] = row
	}
	return keyboard.InlineButtonsRows(rows...)
}
