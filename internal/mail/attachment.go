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

// AttachmentType discriminates the attachment variants.
type AttachmentType string

const (
	AttachmentNote  AttachmentType = "note"
	AttachmentImage AttachmentType = "image"
)

// Attachment is an opaque reference to content held by the external file
// store. The core never dereferences RefID; it only carries it.
type Attachment struct {
	Type  AttachmentType `json:"type"`
	RefID string         `json:"ref_id"`
}
