// Package diorama is the core of an interactive 2D scene animator for
// [Ebitengine].
//
// A [Scene] is a list of [Layer] values, each a placed sprite with a list of
// behaviors: oscillate, drift and pulse modulate a coordinate over time,
// background scrolls with the scene, location behaviors are keyframes, and
// sound behaviors cue pre-recorded clips. Given a layer and a time, the
// package computes where the sprite is, how big, how rotated and in which
// depth order, deterministically.
//
// # Evaluating a scene
//
//	scene, err := diorama.ParseScene(data)
//	stage := diorama.Stage{Width: 960, Height: 540}
//	for _, l := range scene.Layers {
//		tr := stage.Evaluate(l, 2.5, 0)
//		fmt.Println(l.SpriteName, tr.X, tr.Y, tr.Z)
//	}
//
// Keyframes are resolved first ([ResolveLocation]), then the time-based
// behaviors are layered on top ([Evaluate]). Z is a step function of time:
// it changes only at keyframe times.
//
// # Editing
//
// A [SceneGraph] owns the working scene. Every change is an [Intent]
// ([AddLayer], [PatchLayer], [MoveKeyframe], ...) applied atomically with
// [SceneGraph.Apply]; a failed intent leaves the scene untouched. Drags
// show their result through a preview shadow and commit once on release.
//
// [Editor] wires the pieces into an [ebiten.Game]: a [Clock] drives
// playback, the [Renderer] draws the canvas, [Interaction] handles
// selection and body drags, and the [TimelineEditor] lays keyframes out in
// Z lanes for dragging in time and depth.
//
//	session, _ := diorama.OpenSession(ctx, port, "park")
//	editor := diorama.NewEditor(diorama.DefaultConfig(), nil,
//		diorama.EditorOptions{Session: session})
//	ebiten.RunGame(editor)
//
// # Persistence
//
// Scenes and assets come through a [Port]. A [Session] applies commits
// locally, then saves snapshots in the background one at a time, holding
// the local state on a conflict until the user picks a side. The store
// subpackage provides directory, gdata and SQLite ports; the audio
// subpackage plays sound behaviors with beep.
//
// # Testing
//
// The editor runs without a window. Inject pointer and key events with
// [Editor.InjectClick], [Editor.InjectDrag] and friends, or drive it from a
// JSON script with [LoadTestScript].
//
// [Ebitengine]: https://ebitengine.org
package diorama
