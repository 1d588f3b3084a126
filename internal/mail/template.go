// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mail

import (
	"context"
	"fmt"
)

// Template names the outbound-email template variant for an external
// recipient. Rendering itself happens in the email collaborator; the
// classification drives notification semantics and so lives here.
type Template string

const (
	// TemplateExistingUser — the address belongs to a registered person.
	TemplateExistingUser Template = "existing_user"
	// TemplateRepeatRecipient — we have mailed this address before.
	TemplateRepeatRecipient Template = "repeat_recipient"
	// TemplateNewRecipient — first contact with this address.
	TemplateNewRecipient Template = "new_recipient"
)

// Directory resolves email addresses against the person directory.
// Implemented by person.Store.
type Directory interface {
	EmailRegistered(ctx context.Context, email string) (bool, error)
}

// History answers whether the system has previously sent mail to an
// external address. Implemented by store.MailStore.
type History interface {
	HasMailToEmail(ctx context.Context, email string) (bool, error)
}

// TemplateClassifier picks the outbound template for a ToEmail
// correspondent.
type TemplateClassifier struct {
	directory Directory
	history   History
}

// NewTemplateClassifier wires the classifier to its collaborators.
func NewTemplateClassifier(directory Directory, history History) *TemplateClassifier {
	return &TemplateClassifier{directory: directory, history: history}
}

// TemplateFor classifies an external recipient. Registered user wins over
// repeat recipient; neither means first contact.
func (t *TemplateClassifier) TemplateFor(ctx context.Context, c Correspondent) (Template, error) {
	if c.Type != TypeToEmail {
		return "", fmt.Errorf("template for %s correspondent: %w", c.Type, ErrInvalidTransition)
	}

	registered, err := t.directory.EmailRegistered(ctx, c.Email)
	if err != nil {
		return "", fmt.Errorf("directory lookup for %s: %w", c.Email, err)
	}
	if registered {
		return TemplateExistingUser, nil
	}

	mailed, err := t.history.HasMailToEmail(ctx, c.Email)
	if err != nil {
		return "", fmt.Errorf("mail history for %s: %w", c.Email, err)
	}
	if mailed {
		return TemplateRepeatRecipient, nil
	}

	return TemplateNewRecipient, nil
}
