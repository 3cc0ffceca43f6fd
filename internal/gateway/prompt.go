package gateway

import "fmt"

func classificationPrompt(transcript string) string {
	return fmt.Sprintf(`You are a voice assistant that classifies spoken commands into structured intents.

Analyze the following voice transcript and classify it as one of three intent types:

## Intent Types

### LOG - Recording/saving data
Categories: expense, income, contact, event
Examples:
- "Log a $50 dinner expense" -> LOG/expense
- "I earned $500 from consulting" -> LOG/income
- "Met John Smith at the conference" -> LOG/contact
- "Note that I have a dentist appointment Thursday" -> LOG/event

### QUERY - Asking questions about data
Categories: calendar, finance, contact, task, general
Examples:
- "What meetings do I have tomorrow?" -> QUERY/calendar
- "How much did I spend this month?" -> QUERY/finance
- "Do I have Sarah's phone number?" -> QUERY/contact
- "What tasks are due this week?" -> QUERY/task
- "What's on my plate today?" -> QUERY/general

### ACT - Performing an action or creating something
Categories: email, event, todo, workspace, contact, transaction, draft
Examples:
- "Send an email to John about the meeting" -> ACT/email
- "Schedule a meeting tomorrow at 2pm with the team" -> ACT/event
- "Create a task to review the contract by Friday" -> ACT/todo
- "Create a workspace for Project Alpha" -> ACT/workspace
- "Add Sarah as a new contact with phone 555-1234" -> ACT/contact
- "Record $50 for office supplies" -> ACT/transaction
- "Save a draft email to the team about the offsite" -> ACT/draft

## Classification Rules
1. LOG vs ACT: LOG is passive recording of past events. ACT is creating or performing something new.
2. ACT/email: sending or composing an email. Extract to, subject, body.
3. ACT/event: scheduling a calendar event. Extract title, date, time, duration, location, attendees.
4. ACT/todo: creating tasks or reminders. Extract title, due_date, priority.
5. ACT/workspace: creating a project or workspace. Extract title, type (Business/Personal/Admin/Creative).
6. ACT/contact: explicitly adding a contact. Extract name, phone, email, company, role.
7. ACT/transaction: explicitly recording a financial entry. Extract amount, description, category (Income/Personal Expenses/Business Expenses), date.
8. ACT/draft: saving a draft message without sending. Extract to, subject, body.

## Response Format
Return a JSON object:
{
  "intentType": "log" | "query" | "act",
  "category": "<category from above>",
  "title": "<short summary of the command>",
  "detail": "<longer description or the full command context>",
  "confidence": <0.0 to 1.0>,
  "entities": { <only the fields relevant to the classified category> }
}

Voice transcript: %q`, transcript)
}
