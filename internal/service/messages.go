package service

// User-visible texts. All of them are sent with HTML parse mode.
const (
	msgWelcome = "👋 <b>Welcome to the course!</b>\n\n" +
		"Lessons will arrive here one by one. Use /pause to take a break and /resume to continue."

	msgWelcomeScheduled = "👋 <b>Welcome to the course!</b>\n\n" +
		"📅 A new portion of lessons arrives every day. Use /pause to take a break and /resume to continue."

	msgWelcomeBackScheduled = "👋 Welcome back! Your next lessons arrive with the daily delivery."

	msgWelcomeBack        = "👋 Welcome back! Picking up where you left off."
	msgFinishQuizFirst    = "📝 Please finish the current quiz first."
	msgFinishAssessFirst  = "🔍 Please finish the current self-assessment first."
	msgAlreadyProcessing  = "⏳ Lessons are already on their way..."
	msgOverloaded         = "⏳ The system is busy right now. Please try again in a moment."
	msgSomethingWrong     = "⚠️ Something went wrong while sending your lesson. Use /resume to try again."
	msgCourseFinished     = "🎉 <b>Congratulations!</b> You have completed the whole course! 🏆"
	msgCourseAlreadyDone  = "🏆 You have already completed the course. Use /reset to start over."
	msgDailyReminder      = "☀️ Your next lesson is waiting! Press the button under the last lesson to continue."
	msgPaused             = "⏸ The course is paused. Use /resume whenever you are ready."
	msgAlreadyPaused      = "⏸ The course is already paused."
	msgResumed            = "▶️ Resuming the course..."
	msgWaitingForNext     = "👉 Press the button under the last lesson to continue."
	msgReset              = "🔄 Your progress has been reset. Use /resume to start from the first lesson."
	msgSkipped            = "⏭ Lesson skipped."
	msgSkipInSubFlow      = "⚠️ Quizzes and self-assessments cannot be skipped."
	msgNothingToSkip      = "🏁 There are no more lessons to skip."
	msgRestored           = "♻️ Your progress has been restored to lesson %d."
	msgNothingToRestore   = "🤷 There is no saved progress to restore."
	msgEmailSaved         = "📧 Saved! We will send your completion note to %s."
	msgEmailInvalid       = "❌ That does not look like a valid e-mail address. Usage: /email you@example.com"
	msgNoQuizResults      = "📝 You have not passed any quizzes yet."
	msgNoAssessResults    = "🔍 You have not completed any self-assessments yet."
	msgQuizIntro          = "🧠 <b>%s</b>\n\n📝 Questions: %d\n📊 Pass score: %d%%\n🔄 Attempt: %d\n\nReady? Let's start!"
	msgQuizQuestion       = "❓ <b>Question %d/%d</b>\n\n%s"
	msgQuizCorrect        = "✅ <b>Correct!</b>\n\n%s) %s"
	msgQuizWrong          = "❌ <b>Not quite</b>\n\nYour answer: %s) %s\nCorrect answer: %s) %s"
	msgQuizExplanation    = "\n\n💡 <b>Explanation:</b>\n%s"
	msgQuizPassed         = "🎉 <b>Quiz passed!</b> Score: %d%%"
	msgQuizFailed         = "❌ <b>Quiz not passed</b> (%d%%, need %d%%)\n\nReview the material and try again."
	msgQuizRetry          = "🔄 <b>Attempt %d</b>\n\nStarting again!"
	msgAssessQuestion     = "❓ <b>Question %d/%d</b>\n\n%s"
	msgAssessResult       = "📊 <b>%s</b>\n\n✅ You answered \"yes\" %d of %d times\n\n<b>%s</b>\n\n%s"
	msgAssessAdvice       = "💡 <b>Advice:</b>\n\n%s"
	msgAssessRangeMissing = "❌ Could not calculate the result. Please answer again."
)

// Callback tokens of the built-in controls
const (
	CallbackQuizAnswerPrefix = "quiz_answer_"
	CallbackQuizRetry        = "retry_quiz"
	CallbackAssessYes        = "assessment_yes"
	CallbackAssessNo         = "assessment_no"
	CallbackAssessAdvice     = "show_assessment_advice"
	CallbackAssessContinue   = "assessment_continue"
)
