package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/studyplan/internal/domain"
)

const extractSystemPrompt = `You are a syllabus analysis assistant. Your task is to extract key information from a course syllabus and return it in a structured JSON format.

Extract the following information:
- Course name
- All assignments (name, due date, weight/points)
- All readings (title, due date if specified)
- All exams (name, date, weight)

Be thorough and accurate. If a field is not specified, omit it or use null.`

const extractPromptTemplate = `Analyze the following syllabus and extract information in JSON format:

%s

Return ONLY valid JSON in this format:
{
  "courseName": "string",
  "assignments": [
    {"name": "string", "dueDate": "YYYY-MM-DD", "weight": number}
  ],
  "readings": [
    {"title": "string", "dueDate": "YYYY-MM-DD"}
  ],
  "exams": [
    {"name": "string", "date": "YYYY-MM-DD", "weight": number}
  ]
}`

const planSystemPrompt = `You are a study planning assistant. Your task is to create a realistic, personalized 14-day study plan that helps students manage their coursework effectively.

Consider:
- Student's weekly availability
- Student's learning goals and pace
- Assignment due dates and priorities
- Balance between readings, assignments, and exam prep
- Breaks and realistic workload

Create a structured plan that is motivating and achievable.`

const planPromptTemplate = `Create a 14-day study plan based on:

COURSE DATA:
%s

STUDENT PREFERENCES:
- Availability: %s
- Goals: %s

Return a structured plan in JSON:
{
  "weeks": [
    {
      "weekNumber": 1,
      "tasks": [
        {"day": "Monday", "task": "string", "duration": "string"}
      ]
    }
  ]
}

Make the plan specific, actionable, and realistic.`

const reviseSystemPrompt = `You are a helpful study planning assistant. The student has a current study plan and wants to make changes to it.

Your job:
1. Understand their request (e.g., "move reading to Thursday", "I need more time for the essay")
2. Modify the existing plan accordingly
3. Return the updated plan in the same JSON format
4. Explain the changes you made in a friendly, conversational way

Be flexible and supportive. Help students maintain a balanced, realistic schedule.`

const revisePromptTemplate = `CURRENT PLAN:
%s

STUDENT REQUEST:
%s

CHAT HISTORY (for context):
%s

1. Update the plan based on their request
2. Return updated plan JSON
3. Provide a brief explanation of changes`

// NoPlanMessage is returned for chat before any plan exists.
const NoPlanMessage = "I don't have a study plan for you yet. Please upload your syllabus first so I can create one."

func extractPrompt(raw string) string {
	return fmt.Sprintf(extractPromptTemplate, raw)
}

func planPrompt(s *domain.Syllabus, prefs domain.Preferences) (string, error) {
	course, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode course data: %w", err)
	}
	prefs = prefs.WithDefaults()
	return fmt.Sprintf(planPromptTemplate, course, prefs.WeeklyAvailability, prefs.Goals), nil
}

func revisePrompt(plan, message string, history []domain.ChatEntry) string {
	return fmt.Sprintf(revisePromptTemplate, plan, message, formatHistory(history))
}

// formatHistory renders one "role: content" line per entry in order.
func formatHistory(history []domain.ChatEntry) string {
	lines := make([]string, 0, len(history))
	for _, e := range history {
		lines = append(lines, string(e.Role)+": "+e.Content)
	}
	return strings.Join(lines, "\n")
}
