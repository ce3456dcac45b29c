package rag

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"ragchat/llm"
)

// DefaultSystemPrompt is used when a query carries no system prompt.
const DefaultSystemPrompt = "基於提供的文件內容，請回答以下問題：\n\n{query}\n\n如果文件中沒有相關信息，請明確說明並提供一般性的回答。"

const queryPlaceholder = "{query}"

// Assembler turns a query, a system prompt template and the retrieved
// documents into the ordered message list sent to the model.
type Assembler struct{}

// Fill substitutes the query into the template. A template without the
// {query} placeholder gets the query appended after it, separated by a
// blank line, so the query is never silently dropped.
func (Assembler) Fill(template, query string) string {
	if template == "" {
		template = DefaultSystemPrompt
	}
	if strings.Contains(template, queryPlaceholder) {
		return strings.ReplaceAll(template, queryPlaceholder, query)
	}
	return template + "\n\n" + query
}

// Assemble builds the model input: each retrieved document becomes one
// context message, in retrieval order, ahead of the filled prompt. No
// token-budget trimming happens here.
func (a Assembler) Assemble(template, query string, docs []llm.Document) []*schema.Message {
	messages := make([]*schema.Message, 0, len(docs)+1)
	for _, doc := range docs {
		messages = append(messages, schema.SystemMessage(
			fmt.Sprintf("文件「%s」的內容：\n%s", displayName(doc), doc.Content)))
	}
	messages = append(messages, schema.UserMessage(a.Fill(template, query)))
	return messages
}

func displayName(doc llm.Document) string {
	if doc.DisplayName != "" {
		return doc.DisplayName
	}
	return doc.ID
}
