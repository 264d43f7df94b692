package tui

// guideStep is one station of the guided cycle the method is taught
// through.
type guideStep struct {
	Title string
	Body  string
}

// guideSteps holds the five-step cycle copy, rendered as markdown in
// the guide view.
var guideSteps = []guideStep{
	{
		Title: "Build the list",
		Body: `# Build the list

Capture everything on your mind as tasks, one per line, without
judging or ordering them. New tasks always land at the **end** of the
list.

- Press ` + "`n`" + ` to add a task.
- Give a rough resistance estimate (0–10) if it helps; it is optional.
- Do not prioritize. The list order is the capture order.`,
	},
	{
		Title: "Scan",
		Body: `# Scan

Read the list front to back (or back to front, under settings) and ask
one question per task: *does this feel effortless right now?*

- Press ` + "`S`" + ` to begin a pass.
- ` + "`m`" + ` marks the task and moves on; ` + "`space`" + ` moves on without marking.
- ` + "`u`" + ` corrects a recent decision without moving the cursor.

Marking is a feeling, not a plan. If you hesitate, skip.`,
	},
	{
		Title: "Act",
		Body: `# Act

Work the marked tasks. Work on one until you no longer want to, then
decide its fate honestly:

- Done? Press ` + "`c`" + ` to complete it.
- Partially worked, still worth doing? Press ` + "`r`" + ` to re-enter it at the
  end of the list.
- Too big? Press ` + "`s`" + ` to split it into smaller tasks.
- Use ` + "`t`" + ` to track time while you work.`,
	},
	{
		Title: "Maintain",
		Body: `# Maintain

Prune the list so scanning stays cheap.

- Archive (` + "`a`" + `) tasks you are never going to do.
- Split lingering tasks; high resistance usually means the task is too
  coarse.
- Collapse (` + "`z`" + `) finished project subtrees to keep the view short.`,
	},
	{
		Title: "Reflect",
		Body: `# Reflect

At the end of the day, look at the numbers, not the feelings.

- Press ` + "`R`" + ` for today's scans, marks, and tracked minutes.
- One full scan a day is enough. Consistency beats volume.
- Resistance melts one point every time a task is touched; the list
  does the motivating for you.`,
	},
}
