// stackScene drops a small stack of boxes and spheres onto a ground slab
// and renders the simulation with raylib.
package main

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/akmonengine/talon"
	"github.com/akmonengine/talon/actor"
	"github.com/go-gl/mathgl/mgl64"
)

const timestep = 1.0 / 60.0

type trackedBody struct {
	handle actor.Handle
	shape  actor.ShapeIndex
	color  rl.Color
}

func main() {
	config := talon.DefaultConfig()
	config.Workers = 4
	world := talon.NewWorld(config, nil)

	world.Events.Subscribe(talon.COLLISION_ENTER, func(event talon.Event) {
		enter := event.(talon.CollisionEnterEvent)
		fmt.Printf("contact: body %d with body %d\n", enter.BodyA, enter.BodyB)
	})

	groundShape := world.Shapes.AddBox(actor.Box{HalfExtents: mgl64.Vec3{12, 0.5, 12}})
	world.AddBody(actor.Description{
		Pose:       actor.NewTransformAt(mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent()),
		Mobility:   actor.MobilityStatic,
		Collidable: actor.Collidable{Shape: groundShape, SpeculativeMargin: 0.1},
	})

	boxShape := world.Shapes.AddBox(actor.Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}})
	sphereShape := world.Shapes.AddSphere(actor.Sphere{Radius: 0.5})

	var tracked []trackedBody
	colors := []rl.Color{rl.SkyBlue, rl.Orange, rl.Lime, rl.Gold, rl.Purple}
	for level := 0; level < 5; level++ {
		shape := boxShape
		if level%2 == 1 {
			shape = sphereShape
		}
		handle := world.AddBody(actor.Description{
			Pose: actor.NewTransformAt(
				mgl64.Vec3{float64(level%2) * 0.1, 1.0 + 1.2*float64(level), 0},
				mgl64.QuatIdent()),
			Mobility: actor.MobilityDynamic,
			Density:  1,
			Material: actor.Material{
				StaticFriction:  0.6,
				DynamicFriction: 0.5,
				Restitution:     0.1,
			},
			Collidable: actor.Collidable{Shape: shape, SpeculativeMargin: 0.1},
		})
		tracked = append(tracked, trackedBody{handle: handle, shape: shape, color: colors[level%len(colors)]})
	}

	rl.InitWindow(1280, 720, "talon - stack scene")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	camera := rl.Camera3D{
		Position:   rl.NewVector3(8, 6, 10),
		Target:     rl.NewVector3(0, 1.5, 0),
		Up:         rl.NewVector3(0, 1, 0),
		Fovy:       45,
		Projection: rl.CameraPerspective,
	}

	for !rl.WindowShouldClose() {
		world.Step(timestep)

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)
		rl.BeginMode3D(camera)

		rl.DrawCube(rl.NewVector3(0, -0.5, 0), 24, 1, 24, rl.LightGray)
		rl.DrawGrid(24, 1)

		for _, body := range tracked {
			position := world.Bodies.Lookup(body.handle).Pose.Position
			center := rl.NewVector3(float32(position.X()), float32(position.Y()), float32(position.Z()))
			if body.shape == sphereShape {
				rl.DrawSphere(center, 0.5, body.color)
			} else {
				rl.DrawCube(center, 1, 1, 1, body.color)
			}
		}

		rl.EndMode3D()
		rl.DrawFPS(10, 10)
		rl.EndDrawing()
	}
}
