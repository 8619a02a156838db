package dialog

import (
	"fmt"
	"strings"

	"finman/internal/models"
)

const (
	msgRephrase         = "Sorry, I could not understand that expense. Please rephrase it, for example \"Coffee 50\"."
	msgExtractionFailed = "I could not process your message right now. Please try again in a moment."
	msgNothingToConfirm = "There is nothing to confirm right now. Send me an expense, for example \"Taxi 300\", or a photo of a receipt."
	msgExpired          = "Your previous expense was discarded after a period of inactivity."
	msgCancelled        = "Cancelled. Nothing was saved."
	msgCommitFailed     = "I could not save the expense. Reply \"confirm\" to try again or \"cancel\" to discard it."
	msgCommitTimeout    = "Saving took too long and I cannot tell whether it went through. Reply \"confirm\" to try again, it will not be saved twice."
	msgConfirmHelp      = "Reply \"confirm\" to save, \"edit <field> <value>\" to change name, category or amount, or \"cancel\" to discard."
	msgEditHelp         = "To change a field, send \"edit <field> <value>\", for example \"edit amount 120\"."
	msgUnreadableAnswer = "Sorry, I did not get that."
	msgTurnsExhausted   = "Let's go with what I have so far."
)

func categoryList() string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func question(f Field) string {
	switch f {
	case FieldAmount:
		return "How much did you spend?"
	case FieldCategory:
		return "Which category is it? Choose one of: " + categoryList() + "."
	case FieldName:
		return "What did you spend it on?"
	}
	return "Could you tell me more about this expense?"
}

func summary(c *Candidate) string {
	name := c.Name
	if name == "" {
		name = "-"
	}
	category := string(c.Category)
	if category == "" {
		category = "-"
	}
	amount := "-"
	if c.Amount.IsPositive() {
		amount = c.Amount.StringFixed(2)
	}
	return fmt.Sprintf("Name: %s\nCategory: %s\nAmount: %s", name, category, amount)
}

func confirmPrompt(c *Candidate) string {
	return "Please confirm this expense:\n" + summary(c) + "\n" + msgConfirmHelp
}

func savedMessage(e *models.Expense) string {
	return fmt.Sprintf("Saved: %s, %s, %s.", e.Name, e.Category, e.Amount.StringFixed(2))
}

func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	return "That value is not valid (" + msg + "). " + msgEditHelp
}

func withPrefix(prefix, text string) string {
	if prefix == "" {
		return text
	}
	return prefix + "\n" + text
}
