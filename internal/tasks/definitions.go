package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(ExpiryReminderTask.TaskID(), ExpiryReminderTask.HandleExecution)
}
